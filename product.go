package seckill

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/flashmart/seckill/internal/apierror"
	"github.com/flashmart/seckill/model"
)

// CreateProduct registers a product and its stock row in one call. The
// product is created first; a failed stock insert leaves an OFF product with
// no counter, which can never be sold.
func (l *Seckill) CreateProduct(ctx context.Context, product *model.Product, stock int64) (*model.Product, error) {
	ctx, span := tracer.Start(ctx, "Creating product")
	defer span.End()

	if stock <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "Initial stock must be positive", nil)
	}

	created, err := l.datasource.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}

	_, err = l.datasource.CreateStockRecord(ctx, &model.StockRecord{
		ProductID:  created.ProductID,
		TotalStock: stock,
	})
	if err != nil {
		return nil, err
	}

	logrus.Infof("created product %s with %d units", created.ProductID, stock)
	return created, nil
}

// GetProduct returns the product snapshot, served through the cache.
func (l *Seckill) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	if productID == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "Product ID is required", nil)
	}
	return l.getProduct(ctx, productID)
}

// UpdateProductStatus moves the product through its lifecycle and drops the
// cached snapshot so the next read sees the new state. Going live also warms
// the stock counter.
func (l *Seckill) UpdateProductStatus(ctx context.Context, productID string, status model.ProductStatus) error {
	ctx, span := tracer.Start(ctx, "Updating product status")
	defer span.End()

	if err := l.datasource.UpdateProductStatus(ctx, productID, status); err != nil {
		return err
	}
	if err := l.cache.Delete(ctx, productKeyPrefix+productID); err != nil {
		logrus.Warnf("failed to drop cached product %s: %v", productID, err)
	}

	if status == model.StatusLiveSeckill {
		if err := l.WarmupStock(ctx, productID); err != nil {
			logrus.Errorf("failed to warm stock for newly live product %s: %v", productID, err)
		}
	}
	return nil
}

// GetUserOrders returns the user's seckill orders, newest first.
func (l *Seckill) GetUserOrders(ctx context.Context, userID string, limit, offset int) ([]*model.SeckillOrder, error) {
	if userID == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "User ID is required", nil)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return l.datasource.GetOrdersByUser(ctx, userID, limit, offset)
}
