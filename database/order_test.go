package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/flashmart/seckill/internal/apierror"
	"github.com/flashmart/seckill/model"
)

func testProduct() *model.Product {
	return &model.Product{
		ProductID:    "prd_123",
		Name:         "Limited Edition Widget",
		SeckillPrice: decimal.NewFromFloat(19.99),
	}
}

func TestCreateOrder_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	order := model.NewSeckillOrder("user-1", testProduct(), 1)

	mock.ExpectExec("INSERT INTO seckill_orders").
		WithArgs(order.OrderID, "user-1", "prd_123", "Limited Edition Widget", order.SeckillPrice,
			int64(1), order.TotalAmount, model.OrderStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateOrder(context.Background(), order)
	assert.NoError(t, err)
	assert.Equal(t, order.OrderID, created.OrderID)
}

func TestCreateOrder_DuplicateWin(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	order := model.NewSeckillOrder("user-1", testProduct(), 1)

	mock.ExpectExec("INSERT INTO seckill_orders").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	_, err = ds.CreateOrder(context.Background(), order)
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrAlreadyWon, apierror.KindOf(err))
}

func TestGetOrderByUserAndProduct_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	now := time.Now()
	rows := sqlmock.NewRows([]string{"order_id", "user_id", "product_id", "product_name", "seckill_price", "quantity", "total_amount", "status", "pay_time", "created_at", "updated_at"}).
		AddRow("ord_1", "user-1", "prd_123", "Limited Edition Widget", "19.99", 1, "19.99", "PENDING", nil, now, now)

	mock.ExpectQuery("SELECT order_id").
		WithArgs("user-1", "prd_123").
		WillReturnRows(rows)

	order, err := ds.GetOrderByUserAndProduct(context.Background(), "user-1", "prd_123")
	assert.NoError(t, err)
	assert.Equal(t, "ord_1", order.OrderID)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Nil(t, order.PayTime)
}

func TestGetOrderByUserAndProduct_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT order_id").
		WithArgs("user-1", "prd_404").
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}))

	_, err = ds.GetOrderByUserAndProduct(context.Background(), "user-1", "prd_404")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, apierror.KindOf(err))
}

func TestOrderExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("user-1", "prd_123").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := ds.OrderExists(context.Background(), "user-1", "prd_123")
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteOrder_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("DELETE FROM seckill_orders").
		WithArgs("ord_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ds.DeleteOrder(context.Background(), "ord_1"))
}

func TestUpdateOrderStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE seckill_orders").
		WithArgs("ord_404", model.OrderStatusPaid).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateOrderStatus(context.Background(), "ord_404", model.OrderStatusPaid)
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, apierror.KindOf(err))
}

func TestGetOrdersByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	now := time.Now()
	rows := sqlmock.NewRows([]string{"order_id", "user_id", "product_id", "product_name", "seckill_price", "quantity", "total_amount", "status", "pay_time", "created_at", "updated_at"}).
		AddRow("ord_2", "user-1", "prd_456", "Another Widget", "9.99", 1, "9.99", "PAID", now, now, now).
		AddRow("ord_1", "user-1", "prd_123", "Limited Edition Widget", "19.99", 1, "19.99", "PENDING", nil, now.Add(-time.Hour), now.Add(-time.Hour))

	mock.ExpectQuery("SELECT order_id").
		WithArgs("user-1", 20, 0).
		WillReturnRows(rows)

	orders, err := ds.GetOrdersByUser(context.Background(), "user-1", 20, 0)
	assert.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.NotNil(t, orders[0].PayTime)
}
