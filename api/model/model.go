package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/flashmart/seckill/model"
)

// PurchaseRequest is the body of both the synchronous purchase and the async
// submission.
type PurchaseRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Token     string `json:"token"`
}

func (r *PurchaseRequest) ValidatePurchaseRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.ProductID, validation.Required),
		validation.Field(&r.Quantity, validation.Required, validation.Min(1)),
		validation.Field(&r.Token, validation.Required),
	)
}

// ValidateAsyncSubmitRequest is the async variant: the token is optional
// because the queue dedupes on the request ID.
func (r *PurchaseRequest) ValidateAsyncSubmitRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.ProductID, validation.Required),
		validation.Field(&r.Quantity, validation.Required, validation.Min(1)),
	)
}

// CreateProduct carries the catalog fields plus the initial stock count.
type CreateProduct struct {
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Price            float64   `json:"price"`
	SeckillPrice     float64   `json:"seckill_price"`
	ImageURL         string    `json:"image_url"`
	SeckillStartTime time.Time `json:"seckill_start_time"`
	SeckillEndTime   time.Time `json:"seckill_end_time"`
	Stock            int64     `json:"stock"`
}

func (p *CreateProduct) ValidateCreateProduct() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Price, validation.Required, validation.Min(0.0)),
		validation.Field(&p.SeckillPrice, validation.Required, validation.Min(0.0)),
		validation.Field(&p.Stock, validation.Required, validation.Min(1)),
		validation.Field(&p.SeckillEndTime, validation.By(func(interface{}) error {
			if !p.SeckillEndTime.IsZero() && !p.SeckillEndTime.After(p.SeckillStartTime) {
				return validation.NewError("validation_window", "seckill_end_time must be after seckill_start_time")
			}
			return nil
		})),
	)
}

func (p *CreateProduct) ToProduct() *model.Product {
	return &model.Product{
		Name:             p.Name,
		Description:      p.Description,
		Price:            decimal.NewFromFloat(p.Price),
		SeckillPrice:     decimal.NewFromFloat(p.SeckillPrice),
		ImageURL:         p.ImageURL,
		SeckillStartTime: p.SeckillStartTime,
		SeckillEndTime:   p.SeckillEndTime,
	}
}

// UpdateProductStatus moves a product through its lifecycle.
type UpdateProductStatus struct {
	Status string `json:"status"`
}

func (u *UpdateProductStatus) ValidateUpdateProductStatus() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Status, validation.Required, validation.In(
			string(model.StatusOff), string(model.StatusOnSale), string(model.StatusLiveSeckill))),
	)
}
