package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// SeckillOrder is the proof of a won seckill slot. At most one order exists
// per (user, product) pair; the database enforces this with a unique
// constraint.
type SeckillOrder struct {
	OrderID      string          `json:"order_id"`
	UserID       string          `json:"user_id"`
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	SeckillPrice decimal.Decimal `json:"seckill_price"`
	Quantity     int64           `json:"quantity"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       OrderStatus     `json:"status"`
	PayTime      *time.Time      `json:"pay_time,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewSeckillOrder builds a pending order for the product at its seckill
// price.
func NewSeckillOrder(userID string, product *Product, quantity int64) *SeckillOrder {
	now := time.Now()
	return &SeckillOrder{
		OrderID:      GenerateUUIDWithSuffix("ord"),
		UserID:       userID,
		ProductID:    product.ProductID,
		ProductName:  product.Name,
		SeckillPrice: product.SeckillPrice,
		Quantity:     quantity,
		TotalAmount:  product.SeckillPrice.Mul(decimal.NewFromInt(quantity)),
		Status:       OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
