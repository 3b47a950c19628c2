package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/flashmart/seckill/internal/apierror"
	"github.com/flashmart/seckill/model"
)

// CreateStockRecord inserts the stock row for a product. Exactly one stock
// row exists per product.
func (d Datasource) CreateStockRecord(ctx context.Context, stock *model.StockRecord) (*model.StockRecord, error) {
	stock.StockID = model.GenerateUUIDWithSuffix("stk")
	stock.CreatedAt = time.Now()
	stock.UpdatedAt = stock.CreatedAt
	if stock.AvailableStock == 0 {
		stock.AvailableStock = stock.TotalStock
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO product_stocks (stock_id, product_id, total_stock, available_stock, locked_stock, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, stock.StockID, stock.ProductID, stock.TotalStock, stock.AvailableStock,
		stock.LockedStock, stock.Version, stock.CreatedAt, stock.UpdatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, apierror.NewAPIError(apierror.ErrConflict, "Stock record for this product already exists", err)
			case "foreign_key_violation":
				return nil, apierror.NewAPIError(apierror.ErrNotFound, "Product does not exist", err)
			default:
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create stock record", err)
	}

	return stock, nil
}

// GetStockByProductID retrieves the stock row for a product.
func (d Datasource) GetStockByProductID(ctx context.Context, productID string) (*model.StockRecord, error) {
	stock := model.StockRecord{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT stock_id, product_id, total_stock, available_stock, locked_stock, version, created_at, updated_at
		FROM product_stocks
		WHERE product_id = $1
	`, productID)

	err := row.Scan(&stock.StockID, &stock.ProductID, &stock.TotalStock, &stock.AvailableStock,
		&stock.LockedStock, &stock.Version, &stock.CreatedAt, &stock.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Stock record not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stock record", err)
	}

	return &stock, nil
}

// DecreaseAvailableStock is the durable decrement: one conditional statement
// that only fires when enough stock remains, bumping the row version. It
// never reads first, so two concurrent decrements cannot both succeed on the
// last unit. Returns false when the guard rejected the write.
func (d Datasource) DecreaseAvailableStock(ctx context.Context, productID string, quantity int64) (bool, error) {
	if quantity <= 0 {
		return false, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("invalid decrement quantity %d", quantity), nil)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE product_stocks
		SET available_stock = available_stock - $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE product_id = $1 AND available_stock >= $2
	`, productID, quantity)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decrement stock", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read decrement result", err)
	}

	return rowsAffected > 0, nil
}

// IncreaseAvailableStock returns quantity units to the row, capped at total
// stock so repeated compensation can never inflate inventory.
func (d Datasource) IncreaseAvailableStock(ctx context.Context, productID string, quantity int64) error {
	if quantity <= 0 {
		return apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("invalid increment quantity %d", quantity), nil)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE product_stocks
		SET available_stock = LEAST(total_stock, available_stock + $2),
		    version = version + 1,
		    updated_at = NOW()
		WHERE product_id = $1
	`, productID, quantity)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to return stock", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read increment result", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Stock record not found", nil)
	}

	return nil
}
