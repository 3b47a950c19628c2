package database

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/flashmart/seckill/internal/apierror"
	"github.com/flashmart/seckill/model"
)

// CreateOrder inserts a seckill order. The unique (user_id, product_id)
// constraint makes a second win by the same user surface as a conflict, not
// a second row.
func (d Datasource) CreateOrder(ctx context.Context, order *model.SeckillOrder) (*model.SeckillOrder, error) {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO seckill_orders (order_id, user_id, product_id, product_name, seckill_price, quantity, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, order.OrderID, order.UserID, order.ProductID, order.ProductName, order.SeckillPrice,
		order.Quantity, order.TotalAmount, order.Status, order.CreatedAt, order.UpdatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, apierror.NewAPIError(apierror.ErrAlreadyWon, "User already holds an order for this product", err)
			case "foreign_key_violation":
				return nil, apierror.NewAPIError(apierror.ErrNotFound, "Product does not exist", err)
			default:
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return nil, apierror.NewAPIError(apierror.ErrOrderCreateFailed, "Failed to create order", err)
	}

	return order, nil
}

const orderColumns = `order_id, user_id, product_id, product_name, seckill_price, quantity, total_amount, status, pay_time, created_at, updated_at`

func scanOrder(row interface {
	Scan(dest ...interface{}) error
}) (*model.SeckillOrder, error) {
	order := model.SeckillOrder{}
	var payTime sql.NullTime
	err := row.Scan(&order.OrderID, &order.UserID, &order.ProductID, &order.ProductName,
		&order.SeckillPrice, &order.Quantity, &order.TotalAmount, &order.Status,
		&payTime, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if payTime.Valid {
		order.PayTime = &payTime.Time
	}
	return &order, nil
}

// GetOrderByID retrieves an order by its ID.
func (d Datasource) GetOrderByID(ctx context.Context, id string) (*model.SeckillOrder, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM seckill_orders
		WHERE order_id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Order not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve order", err)
	}

	return order, nil
}

// GetOrderByUserAndProduct retrieves a user's order for a product, the
// durable source of truth behind the winner cache.
func (d Datasource) GetOrderByUserAndProduct(ctx context.Context, userID, productID string) (*model.SeckillOrder, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM seckill_orders
		WHERE user_id = $1 AND product_id = $2
	`, userID, productID)

	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Order not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve order", err)
	}

	return order, nil
}

// OrderExists reports whether the user already holds an order for the
// product.
func (d Datasource) OrderExists(ctx context.Context, userID, productID string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM seckill_orders WHERE user_id = $1 AND product_id = $2)
	`, userID, productID).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check order existence", err)
	}
	return exists, nil
}

// UpdateOrderStatus updates the status of an order.
func (d Datasource) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE seckill_orders
		SET status = $2, updated_at = NOW()
		WHERE order_id = $1
	`, id, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update order status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Order not found", nil)
	}

	return nil
}

// DeleteOrder removes an order row. Reconciliation tooling uses this to
// clear orders whose stock movement was manually reversed; the purchase path
// never deletes, it compensates stock instead.
func (d Datasource) DeleteOrder(ctx context.Context, id string) error {
	result, err := d.Conn.ExecContext(ctx, `
		DELETE FROM seckill_orders WHERE order_id = $1
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete order", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read delete result", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Order not found", nil)
	}

	return nil
}

// GetOrdersByUser retrieves a user's orders, newest first.
func (d Datasource) GetOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]*model.SeckillOrder, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM seckill_orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve orders", err)
	}
	defer rows.Close()

	orders := []*model.SeckillOrder{}

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan order data", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over orders", err)
	}

	return orders, nil
}
