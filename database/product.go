package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/flashmart/seckill/internal/apierror"
	"github.com/flashmart/seckill/model"
)

// CreateProduct inserts a new product into the catalog. The caller provides
// the commercial fields; the ID and timestamps are assigned here.
func (d Datasource) CreateProduct(ctx context.Context, product *model.Product) (*model.Product, error) {
	product.ProductID = model.GenerateUUIDWithSuffix("prd")
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt
	if product.Status == "" {
		product.Status = model.StatusOff
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO products (product_id, name, description, price, seckill_price, image_url, status, seckill_start_time, seckill_end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, product.ProductID, product.Name, product.Description, product.Price, product.SeckillPrice,
		product.ImageURL, product.Status, product.SeckillStartTime, product.SeckillEndTime,
		product.CreatedAt, product.UpdatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, apierror.NewAPIError(apierror.ErrConflict, "Product with this ID already exists", err)
			default:
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create product", err)
	}

	return product, nil
}

// GetProductByID retrieves a product by its ID.
func (d Datasource) GetProductByID(ctx context.Context, id string) (*model.Product, error) {
	product := model.Product{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT product_id, name, description, price, seckill_price, image_url, status, COALESCE(seckill_start_time, '0001-01-01'), COALESCE(seckill_end_time, '0001-01-01'), created_at, updated_at
		FROM products
		WHERE product_id = $1
	`, id)

	err := row.Scan(&product.ProductID, &product.Name, &product.Description, &product.Price,
		&product.SeckillPrice, &product.ImageURL, &product.Status,
		&product.SeckillStartTime, &product.SeckillEndTime, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Product not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve product", err)
	}

	return &product, nil
}

// GetLiveSeckillProducts returns products whose status is live and whose
// sale window covers the current time. Used by cache warmup.
func (d Datasource) GetLiveSeckillProducts(ctx context.Context) ([]*model.Product, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT product_id, name, description, price, seckill_price, image_url, status, COALESCE(seckill_start_time, '0001-01-01'), COALESCE(seckill_end_time, '0001-01-01'), created_at, updated_at
		FROM products
		WHERE status = $1 AND seckill_start_time <= NOW() AND seckill_end_time >= NOW()
	`, model.StatusLiveSeckill)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve live products", err)
	}
	defer rows.Close()

	products := []*model.Product{}

	for rows.Next() {
		product := model.Product{}
		err = rows.Scan(&product.ProductID, &product.Name, &product.Description, &product.Price,
			&product.SeckillPrice, &product.ImageURL, &product.Status,
			&product.SeckillStartTime, &product.SeckillEndTime, &product.CreatedAt, &product.UpdatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan product data", err)
		}
		products = append(products, &product)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over products", err)
	}

	return products, nil
}

// UpdateProductStatus moves the product through its lifecycle.
func (d Datasource) UpdateProductStatus(ctx context.Context, id string, status model.ProductStatus) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE products
		SET status = $2, updated_at = NOW()
		WHERE product_id = $1
	`, id, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update product status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Product not found", nil)
	}

	return nil
}
