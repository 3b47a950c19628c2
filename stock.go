package seckill

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/flashmart/seckill/config"
	"github.com/flashmart/seckill/internal/apierror"
	"github.com/flashmart/seckill/internal/notification"
	"github.com/flashmart/seckill/model"
)

const (
	stockKeyPrefix     = "seckill:stock:"
	stockSyncKeyPrefix = "seckill:stock:sync:"
	stockSyncTTL       = time.Hour
)

const (
	preDeductMissing      = -2
	preDeductInsufficient = -1
)

// preDeductScript is phase one of the purchase: check and decrement the
// cached counter in one atomic round trip. Returns the remaining count,
// -1 when stock is insufficient, -2 when the counter was never warmed.
var preDeductScript = redis.NewScript(`
local stock = redis.call('GET', KEYS[1])
if not stock then
    return -2
end
stock = tonumber(stock)
local qty = tonumber(ARGV[1])
if stock < qty then
    return -1
end
return redis.call('DECRBY', KEYS[1], qty)`)

func stockKey(productID string) string {
	return stockKeyPrefix + productID
}

// preDeductStock runs the cached check-and-decrement. A cold counter fails
// the attempt: selling only starts once the counter has been warmed, so a
// purchase never decides stock off a half-initialized cache.
func (l *Seckill) preDeductStock(ctx context.Context, productID string, quantity int64) (int64, error) {
	remaining, err := l.runPreDeduct(ctx, productID, quantity)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Stock cache unavailable", err)
	}
	if remaining == preDeductMissing {
		return 0, apierror.NewAPIError(apierror.ErrCacheMiss, fmt.Sprintf("No stock counter for product %s, warm it before selling", productID), nil)
	}
	if remaining == preDeductInsufficient {
		return 0, apierror.NewAPIError(apierror.ErrInsufficientStock, fmt.Sprintf("Product %s is sold out", productID), nil)
	}

	l.writeSyncMarker(ctx, productID, fmt.Sprintf("deduct:%d:%d", quantity, remaining))
	return remaining, nil
}

func (l *Seckill) runPreDeduct(ctx context.Context, productID string, quantity int64) (int64, error) {
	return preDeductScript.Run(ctx, l.redis, []string{stockKey(productID)}, quantity).Int64()
}

// rollbackCacheStock is the phase-one compensation: return the units to the
// cached counter. Failure here is reported, never propagated, because the
// caller is already unwinding.
func (l *Seckill) rollbackCacheStock(ctx context.Context, productID string, quantity int64) {
	err := l.redis.IncrBy(ctx, stockKey(productID), quantity).Err()
	if err != nil {
		notification.NotifyError(errors.Wrapf(err, "stock compensation failed: %d units stranded in cache for product %s", quantity, productID))
		return
	}
	l.writeSyncMarker(ctx, productID, "rollback")
}

// rollbackDurableStock is the phase-two compensation: return the units to the
// durable row after a failed order write. Same reporting rule as the cache
// rollback.
func (l *Seckill) rollbackDurableStock(ctx context.Context, productID string, quantity int64) {
	err := l.datasource.IncreaseAvailableStock(ctx, productID, quantity)
	if err != nil {
		notification.NotifyError(errors.Wrapf(err, "stock compensation failed: %d units stranded in database for product %s", quantity, productID))
		return
	}
	l.writeSyncMarker(ctx, productID, "rollback")
}

// confirmStock is phase three: re-read the cached counter and assert it
// still holds the value phase one predicted. A missing or diverged counter
// means something outside the purchase path touched it; the durable
// decrement is compensated and the attempt fails before any order is
// written.
func (l *Seckill) confirmStock(ctx context.Context, productID string, quantity, predicted int64) error {
	current, err := l.redis.Get(ctx, stockKey(productID)).Int64()
	if err != nil && err != redis.Nil {
		l.rollbackCacheStock(ctx, productID, quantity)
		l.rollbackDurableStock(ctx, productID, quantity)
		return apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Stock cache unavailable", err)
	}
	if err == redis.Nil || current != predicted {
		logrus.WithFields(logrus.Fields{
			"product_id": productID,
			"expected":   predicted,
			"actual":     current,
		}).Error("stock counter diverged")
		notification.NotifyError(fmt.Errorf("stock counter for product %s diverged: expected %d, found %d", productID, predicted, current))
		l.rollbackDurableStock(ctx, productID, quantity)
		return apierror.NewAPIError(apierror.ErrStateInconsistent, fmt.Sprintf("Stock counter for product %s was changed outside the purchase path", productID), nil)
	}
	l.writeSyncMarker(ctx, productID, fmt.Sprintf("confirm:%d:%d", quantity, current))
	return nil
}

// writeSyncMarker leaves a short-lived audit trail of protocol phases, one
// key per event, for the consistency probe and manual reconciliation.
func (l *Seckill) writeSyncMarker(ctx context.Context, productID, state string) {
	key := fmt.Sprintf("%s%s:%d", stockSyncKeyPrefix, productID, time.Now().UnixMilli())
	if err := l.redis.Set(ctx, key, state, stockSyncTTL).Err(); err != nil {
		logrus.Warnf("failed to write stock sync marker for product %s: %v", productID, err)
	}
}

// WarmupStock loads the durable available count for the product into the
// cached counter. SETNX keeps a concurrent warmup from clobbering a counter
// that live traffic is already decrementing.
func (l *Seckill) WarmupStock(ctx context.Context, productID string) error {
	ctx, span := tracer.Start(ctx, "Warming stock counter")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	stock, err := l.datasource.GetStockByProductID(ctx, productID)
	if err != nil {
		return err
	}

	set, err := l.redis.SetNX(ctx, stockKey(productID), stock.AvailableStock, cnf.Stock.CacheTTL()).Result()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Failed to warm stock counter", err)
	}
	if set {
		logrus.Infof("warmed stock counter for product %s: %d units", productID, stock.AvailableStock)
	}
	return nil
}

// WarmupAllLive warms the counters of every product currently live for
// seckill. Called at startup and before a sale window opens.
func (l *Seckill) WarmupAllLive(ctx context.Context) (int, error) {
	products, err := l.datasource.GetLiveSeckillProducts(ctx)
	if err != nil {
		return 0, err
	}

	warmed := 0
	for _, product := range products {
		if err := l.WarmupStock(ctx, product.ProductID); err != nil {
			logrus.Errorf("failed to warm stock for product %s: %v", product.ProductID, err)
			continue
		}
		warmed++
	}
	return warmed, nil
}

// GetStock reports both sides of the inventory: the cached counter serving
// admission and the durable row backing it. A cold cache reports -1.
func (l *Seckill) GetStock(ctx context.Context, productID string) (cached int64, durable *model.StockRecord, err error) {
	durable, err = l.datasource.GetStockByProductID(ctx, productID)
	if err != nil {
		return 0, nil, err
	}

	cached, redisErr := l.redis.Get(ctx, stockKey(productID)).Int64()
	if redisErr == redis.Nil {
		return -1, durable, nil
	}
	if redisErr != nil {
		return 0, nil, apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Stock cache unavailable", redisErr)
	}
	return cached, durable, nil
}

// StockConsistencyStatus compares the cached counter with the durable row.
// InSync is false when the counter is cold or the two sides disagree.
type StockConsistencyStatus struct {
	ProductID string `json:"product_id"`
	Cached    int64  `json:"cached"`
	Durable   int64  `json:"durable"`
	CacheWarm bool   `json:"cache_warm"`
	InSync    bool   `json:"in_sync"`
}

// CheckStockConsistency is the operator-facing probe behind the consistency
// endpoint.
func (l *Seckill) CheckStockConsistency(ctx context.Context, productID string) (*StockConsistencyStatus, error) {
	cached, durable, err := l.GetStock(ctx, productID)
	if err != nil {
		return nil, err
	}

	status := &StockConsistencyStatus{
		ProductID: productID,
		Cached:    cached,
		Durable:   durable.AvailableStock,
		CacheWarm: cached >= 0,
	}
	status.InSync = status.CacheWarm && cached == durable.AvailableStock
	return status, nil
}
