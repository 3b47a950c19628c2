package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/flashmart/seckill/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Product methods

func (m *MockDataSource) CreateProduct(ctx context.Context, product *model.Product) (*model.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockDataSource) GetProductByID(ctx context.Context, id string) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockDataSource) GetLiveSeckillProducts(ctx context.Context) ([]*model.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Product), args.Error(1)
}

func (m *MockDataSource) UpdateProductStatus(ctx context.Context, id string, status model.ProductStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// Stock methods

func (m *MockDataSource) CreateStockRecord(ctx context.Context, stock *model.StockRecord) (*model.StockRecord, error) {
	args := m.Called(ctx, stock)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StockRecord), args.Error(1)
}

func (m *MockDataSource) GetStockByProductID(ctx context.Context, productID string) (*model.StockRecord, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StockRecord), args.Error(1)
}

func (m *MockDataSource) DecreaseAvailableStock(ctx context.Context, productID string, quantity int64) (bool, error) {
	args := m.Called(ctx, productID, quantity)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) IncreaseAvailableStock(ctx context.Context, productID string, quantity int64) error {
	args := m.Called(ctx, productID, quantity)
	return args.Error(0)
}

// Order methods

func (m *MockDataSource) CreateOrder(ctx context.Context, order *model.SeckillOrder) (*model.SeckillOrder, error) {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SeckillOrder), args.Error(1)
}

func (m *MockDataSource) GetOrderByID(ctx context.Context, id string) (*model.SeckillOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SeckillOrder), args.Error(1)
}

func (m *MockDataSource) GetOrderByUserAndProduct(ctx context.Context, userID, productID string) (*model.SeckillOrder, error) {
	args := m.Called(ctx, userID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SeckillOrder), args.Error(1)
}

func (m *MockDataSource) OrderExists(ctx context.Context, userID, productID string) (bool, error) {
	args := m.Called(ctx, userID, productID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockDataSource) DeleteOrder(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) GetOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]*model.SeckillOrder, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SeckillOrder), args.Error(1)
}
