package database

import (
	"context"

	"github.com/flashmart/seckill/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	product // Interface for product catalog operations
	stock   // Interface for durable stock operations
	order   // Interface for seckill order operations
}

// product defines methods for handling the catalog.
type product interface {
	CreateProduct(ctx context.Context, product *model.Product) (*model.Product, error) // Creates a new product
	GetProductByID(ctx context.Context, id string) (*model.Product, error)             // Retrieves a product by ID
	GetLiveSeckillProducts(ctx context.Context) ([]*model.Product, error)              // Retrieves products currently live for seckill
	UpdateProductStatus(ctx context.Context, id string, status model.ProductStatus) error
}

// stock defines methods for the durable stock rows.
type stock interface {
	CreateStockRecord(ctx context.Context, stock *model.StockRecord) (*model.StockRecord, error) // Creates the stock row for a product
	GetStockByProductID(ctx context.Context, productID string) (*model.StockRecord, error)       // Retrieves the stock row for a product
	DecreaseAvailableStock(ctx context.Context, productID string, quantity int64) (bool, error)  // Conditionally decrements available stock
	IncreaseAvailableStock(ctx context.Context, productID string, quantity int64) error          // Returns stock, used by compensation
}

// order defines methods for seckill orders.
type order interface {
	CreateOrder(ctx context.Context, order *model.SeckillOrder) (*model.SeckillOrder, error)              // Creates a new order
	GetOrderByID(ctx context.Context, id string) (*model.SeckillOrder, error)                             // Retrieves an order by ID
	GetOrderByUserAndProduct(ctx context.Context, userID, productID string) (*model.SeckillOrder, error)  // Retrieves a user's order for a product
	OrderExists(ctx context.Context, userID, productID string) (bool, error)                              // Checks whether a user already won a product
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error                     // Updates the status of an order
	DeleteOrder(ctx context.Context, id string) error                                                     // Removes an order, used by compensation
	GetOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]*model.SeckillOrder, error) // Retrieves a user's orders
}
