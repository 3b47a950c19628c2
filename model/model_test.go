package model

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("ord")
	assert.True(t, strings.HasPrefix(id, "ord_"))
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("ord"))
}

func TestProductInSeckillWindow(t *testing.T) {
	now := time.Now()
	p := &Product{
		ProductID:        "prd_1",
		Status:           StatusLiveSeckill,
		SeckillStartTime: now.Add(-time.Hour),
		SeckillEndTime:   now.Add(time.Hour),
	}

	assert.True(t, p.InSeckillWindow(now))
	assert.False(t, p.InSeckillWindow(now.Add(2*time.Hour)))
	assert.False(t, p.InSeckillWindow(now.Add(-2*time.Hour)))
	assert.NoError(t, p.LiveForSeckill(now))
}

func TestProductLiveForSeckillErrors(t *testing.T) {
	now := time.Now()

	notLive := &Product{ProductID: "prd_1", Status: StatusOnSale}
	assert.ErrorContains(t, notLive.LiveForSeckill(now), "not in a live seckill")

	noWindow := &Product{ProductID: "prd_1", Status: StatusLiveSeckill}
	assert.ErrorContains(t, noWindow.LiveForSeckill(now), "no seckill window")

	closed := &Product{
		ProductID:        "prd_1",
		Status:           StatusLiveSeckill,
		SeckillStartTime: now.Add(-2 * time.Hour),
		SeckillEndTime:   now.Add(-time.Hour),
	}
	assert.ErrorContains(t, closed.LiveForSeckill(now), "outside its seckill window")
}

func TestNewSeckillOrder(t *testing.T) {
	price, err := decimal.NewFromString("19.99")
	require.NoError(t, err)

	product := &Product{ProductID: "prd_1", Name: "limited sneaker", SeckillPrice: price}
	order := NewSeckillOrder("usr_1", product, 3)

	assert.True(t, strings.HasPrefix(order.OrderID, "ord_"))
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("59.97")))
}

func TestRequestStatusTerminal(t *testing.T) {
	assert.False(t, RequestPending.Terminal())
	assert.False(t, RequestEnqueued.Terminal())
	assert.False(t, RequestProcessing.Terminal())
	assert.True(t, RequestSuccess.Terminal())
	assert.True(t, RequestFailed.Terminal())
	assert.True(t, RequestTimeout.Terminal())
}
