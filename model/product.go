package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus is the lifecycle state of a product. A product is only
// purchasable through the seckill path while it is StatusLiveSeckill and the
// current time falls inside its sale window.
type ProductStatus string

const (
	StatusOff         ProductStatus = "OFF"
	StatusOnSale      ProductStatus = "ON_SALE"
	StatusLiveSeckill ProductStatus = "LIVE_SECKILL"
)

type Product struct {
	ProductID        string          `json:"product_id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	SeckillPrice     decimal.Decimal `json:"seckill_price"`
	ImageURL         string          `json:"image_url"`
	Status           ProductStatus   `json:"status"`
	SeckillStartTime time.Time       `json:"seckill_start_time"`
	SeckillEndTime   time.Time       `json:"seckill_end_time"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// InSeckillWindow reports whether now falls inside the configured sale
// window. A zero start or end time means the window was never set and the
// product is not sellable.
func (p *Product) InSeckillWindow(now time.Time) bool {
	if p.SeckillStartTime.IsZero() || p.SeckillEndTime.IsZero() {
		return false
	}
	return !now.Before(p.SeckillStartTime) && !now.After(p.SeckillEndTime)
}

// LiveForSeckill validates that the product can be sold right now.
func (p *Product) LiveForSeckill(now time.Time) error {
	if p.Status != StatusLiveSeckill {
		return fmt.Errorf("product %s is not in a live seckill", p.ProductID)
	}
	if p.SeckillStartTime.IsZero() || p.SeckillEndTime.IsZero() {
		return fmt.Errorf("product %s has no seckill window configured", p.ProductID)
	}
	if !p.InSeckillWindow(now) {
		return fmt.Errorf("product %s is outside its seckill window", p.ProductID)
	}
	return nil
}
