package seckill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/flashmart/seckill/cache"
	"github.com/flashmart/seckill/config"
	"github.com/flashmart/seckill/database"
	"github.com/flashmart/seckill/internal/apierror"
	"github.com/flashmart/seckill/internal/idempotency"
	redlock "github.com/flashmart/seckill/internal/lock"
	"github.com/flashmart/seckill/internal/ratelimit"
	redis_db "github.com/flashmart/seckill/internal/redis-db"
	"github.com/flashmart/seckill/model"
)

var tracer = otel.Tracer("seckill.engine")

const (
	winnerKeyPrefix  = "seckill:user:"
	productKeyPrefix = "seckill:product:"
	lockKeyPrefix    = "seckill:lock:product:"

	seckillPolicy     = "seckill"
	asyncSubmitPolicy = "async-submit"
)

// Seckill is the engine root: everything the purchase path needs, wired
// once at startup.
type Seckill struct {
	queue      *Queue
	redis      redis.UniversalClient
	cache      cache.Cache
	datasource database.IDataSource
	limiter    *ratelimit.Registry
	tokens     *idempotency.Store
}

// NewSeckill initializes the engine with the provided datasource.
// It fetches the configuration and wires the redis client, cache, queue,
// rate-limit registry and idempotency store.
func NewSeckill(db database.IDataSource) (*Seckill, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	engine := &Seckill{
		queue:      newQueue,
		redis:      redisClient.Client(),
		cache:      newCache,
		datasource: db,
		limiter:    ratelimit.NewRegistry(redisClient.Client(), configuration.RateLimit.Policies),
		tokens:     idempotency.NewStore(redisClient.Client(), 5*time.Minute),
	}
	return engine, nil
}

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

func winnerKey(userID, productID string) string {
	return winnerKeyPrefix + userID + ":" + productID
}

// DoSeckill is the synchronous purchase path. The idempotency token is
// burned before any admission work so a double-submitted form never reaches
// the stock counters twice.
func (l *Seckill) DoSeckill(ctx context.Context, userID, productID string, quantity int64, token string) (*model.SeckillOrder, error) {
	ctx, span := tracer.Start(ctx, "Processing seckill purchase")
	defer span.End()

	if err := validatePurchase(userID, productID, quantity); err != nil {
		return nil, err
	}

	if token == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "Idempotency token is required", nil)
	}
	ok, err := l.tokens.BurnToken(ctx, userID, token)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Token store unavailable", err)
	}
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "Idempotency token is invalid or already used", nil)
	}

	return l.executeSeckill(ctx, userID, productID, quantity)
}

// executeSeckill runs the admission checks and the three-phase stock
// protocol under the product lock. The queue consumer enters here directly:
// its token was burned at submission.
func (l *Seckill) executeSeckill(ctx context.Context, userID, productID string, quantity int64) (*model.SeckillOrder, error) {
	ctx, span := tracer.Start(ctx, "Executing seckill")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	if err := l.checkNotWon(ctx, userID, productID); err != nil {
		return nil, err
	}

	product, err := l.getProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := product.LiveForSeckill(time.Now()); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrValidation, err.Error(), nil)
	}

	if !l.limiter.AllowScoped(ctx, seckillPolicy, productID, userID, "") {
		return nil, apierror.NewAPIError(apierror.ErrRateLimited, fmt.Sprintf("Too many purchase attempts for product %s", productID), nil)
	}

	var order *model.SeckillOrder
	lockKey := redlock.ShardKey(lockKeyPrefix+productID, cnf.Lock.Shards, userID)
	locker := redlock.NewLocker(l.redis, lockKey, model.GenerateUUIDWithSuffix("loc"))
	err = locker.WithLock(ctx, cnf.Lock.Lease(), cnf.Lock.Wait(), func() error {
		order, err = l.purchaseLocked(ctx, span, userID, product, quantity)
		return err
	})
	if err != nil {
		if errors.Is(err, redlock.ErrLockWaitTimeout) {
			return nil, apierror.NewAPIError(apierror.ErrLockTimeout, fmt.Sprintf("Could not acquire purchase lock for product %s", productID), err)
		}
		return nil, err
	}

	return order, nil
}

// purchaseLocked is the critical section: pre-deduct the cached counter,
// decrement the durable row, confirm the counter still matches the
// prediction, then create the order. Each later failure compensates every
// earlier phase.
func (l *Seckill) purchaseLocked(ctx context.Context, span trace.Span, userID string, product *model.Product, quantity int64) (*model.SeckillOrder, error) {
	predicted, err := l.preDeductStock(ctx, product.ProductID, quantity)
	if err != nil {
		return nil, err
	}

	ok, err := l.datasource.DecreaseAvailableStock(ctx, product.ProductID, quantity)
	if err != nil {
		l.rollbackCacheStock(ctx, product.ProductID, quantity)
		return nil, logAndRecordError(span, "durable stock decrement error: ", apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Stock database unavailable", err))
	}
	if !ok {
		l.rollbackCacheStock(ctx, product.ProductID, quantity)
		return nil, apierror.NewAPIError(apierror.ErrInsufficientStock, fmt.Sprintf("Product %s is sold out", product.ProductID), nil)
	}

	if err := l.confirmStock(ctx, product.ProductID, quantity, predicted); err != nil {
		return nil, logAndRecordError(span, "stock confirm error: ", err)
	}

	order, err := l.datasource.CreateOrder(ctx, model.NewSeckillOrder(userID, product, quantity))
	if err != nil {
		l.rollbackCacheStock(ctx, product.ProductID, quantity)
		l.rollbackDurableStock(ctx, product.ProductID, quantity)
		if apierror.KindOf(err) == apierror.ErrAlreadyWon {
			return nil, err
		}
		return nil, logAndRecordError(span, "order creation error: ", err)
	}

	l.markWinner(ctx, userID, order)

	logrus.WithFields(logrus.Fields{
		"order_id":   order.OrderID,
		"user_id":    userID,
		"product_id": product.ProductID,
	}).Info("seckill purchase completed")

	return order, nil
}

func validatePurchase(userID, productID string, quantity int64) error {
	if userID == "" {
		return apierror.NewAPIError(apierror.ErrValidation, "User ID is required", nil)
	}
	if productID == "" {
		return apierror.NewAPIError(apierror.ErrValidation, "Product ID is required", nil)
	}
	if quantity <= 0 {
		return apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("Invalid quantity %d", quantity), nil)
	}
	return nil
}

// checkNotWon enforces one win per (user, product): winner marker first,
// durable orders on a cache miss, backfilling the marker when the durable
// side knows about a win the cache lost.
func (l *Seckill) checkNotWon(ctx context.Context, userID, productID string) error {
	var orderID string
	if err := l.cache.Get(ctx, winnerKey(userID, productID), &orderID); err != nil {
		logrus.Warnf("winner cache read failed for user %s: %v", userID, err)
	}
	if orderID != "" {
		return apierror.NewAPIError(apierror.ErrAlreadyWon, "User already purchased this product", nil)
	}

	won, err := l.datasource.OrderExists(ctx, userID, productID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Order store unavailable", err)
	}
	if won {
		order, err := l.datasource.GetOrderByUserAndProduct(ctx, userID, productID)
		if err == nil {
			l.markWinner(ctx, userID, order)
		}
		return apierror.NewAPIError(apierror.ErrAlreadyWon, "User already purchased this product", nil)
	}
	return nil
}

// markWinner records the win in the cache so repeat attempts are rejected
// without touching the database. Best effort: the durable unique constraint
// is the real guarantee.
func (l *Seckill) markWinner(ctx context.Context, userID string, order *model.SeckillOrder) {
	cnf, err := config.Fetch()
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, winnerKey(userID, order.ProductID), order.OrderID, cnf.Stock.CacheTTL()); err != nil {
		logrus.Warnf("failed to cache winner marker for user %s: %v", userID, err)
	}
}

// getProduct reads the product snapshot through the cache, backfilling it
// from the database on a miss.
func (l *Seckill) getProduct(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	if err := l.cache.Get(ctx, productKeyPrefix+productID, &product); err != nil {
		logrus.Warnf("product cache read failed for %s: %v", productID, err)
	}
	if product.ProductID != "" {
		return &product, nil
	}

	fromDB, err := l.datasource.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	cnf, cnfErr := config.Fetch()
	if cnfErr == nil {
		if err := l.cache.Set(ctx, productKeyPrefix+productID, fromDB, cnf.Stock.CacheTTL()); err != nil {
			logrus.Warnf("failed to cache product %s: %v", productID, err)
		}
	}
	return fromDB, nil
}

// IssueIdempotencyToken mints the single-use token the purchase endpoints
// require.
func (l *Seckill) IssueIdempotencyToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", apierror.NewAPIError(apierror.ErrValidation, "User ID is required", nil)
	}
	token, err := l.tokens.IssueToken(ctx, userID)
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Token store unavailable", err)
	}
	return token, nil
}

// GetSeckillResult reports whether the user won the product, returning the
// order when one exists.
func (l *Seckill) GetSeckillResult(ctx context.Context, userID, productID string) (*model.SeckillOrder, error) {
	ctx, span := tracer.Start(ctx, "Fetching seckill result")
	defer span.End()

	if userID == "" || productID == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "User ID and product ID are required", nil)
	}
	return l.datasource.GetOrderByUserAndProduct(ctx, userID, productID)
}

// Limiter exposes the rate-limit registry for transport middleware.
func (l *Seckill) Limiter() *ratelimit.Registry {
	return l.limiter
}

// RateLimitStatus exposes the current consumption of a named policy.
func (l *Seckill) RateLimitStatus(ctx context.Context, name string) (int64, error) {
	return l.limiter.Status(ctx, name)
}

// ResetRateLimit clears a named policy's state.
func (l *Seckill) ResetRateLimit(ctx context.Context, name string) error {
	return l.limiter.Reset(ctx, name)
}
