package seckill

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashmart/seckill/internal/apierror"
	"github.com/flashmart/seckill/model"
)

func TestSubmitAsync_Success(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	userID := gofakeit.UUID()
	productID := "prd_" + gofakeit.UUID()

	request, err := engine.SubmitAsync(ctx, userID, productID, 1, issueToken(t, engine, userID))
	require.NoError(t, err)
	assert.NotEmpty(t, request.RequestID)
	assert.Equal(t, model.RequestEnqueued, request.Status)

	stored, err := engine.GetAsyncRequest(ctx, request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestEnqueued, stored.Status)
	assert.Equal(t, userID, stored.UserID)
}

func TestSubmitAsync_TokenOptional(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	userID := gofakeit.UUID()
	productID := "prd_" + gofakeit.UUID()

	// the broker dedupes on request ID, so a tokenless submission is fine
	request, err := engine.SubmitAsync(ctx, userID, productID, 1, "")
	require.NoError(t, err)
	assert.Equal(t, model.RequestEnqueued, request.Status)
}

func TestSubmitAsync_TokenSingleUse(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	userID := gofakeit.UUID()
	productID := "prd_" + gofakeit.UUID()
	token := issueToken(t, engine, userID)

	_, err := engine.SubmitAsync(ctx, userID, productID, 1, token)
	require.NoError(t, err)

	_, err = engine.SubmitAsync(ctx, userID, productID, 1, token)
	require.Error(t, err)
	assert.Equal(t, apierror.ErrValidation, apierror.KindOf(err))
}

func TestGetAsyncRequest_NotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.GetAsyncRequest(context.Background(), "req_missing")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, apierror.KindOf(err))
}

func TestTransitionRequest_TerminalGuard(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	request := &model.AsyncRequest{
		RequestID:   model.GenerateUUIDWithSuffix("req"),
		UserID:      "user-1",
		ProductID:   "prd_1",
		Quantity:    1,
		Status:      model.RequestPending,
		SubmittedAt: time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, engine.saveRequest(ctx, request))

	engine.setRequestOutcome(ctx, request.RequestID, model.RequestSuccess, "ord_1", "")

	// a late PROCESSING write must not reopen a finished request
	require.NoError(t, engine.transitionRequest(ctx, request.RequestID, model.RequestProcessing, nil))

	stored, err := engine.GetAsyncRequest(ctx, request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestSuccess, stored.Status)
	assert.Equal(t, "ord_1", stored.OrderID)
}

func TestTransitionRequest_ConsumerOverridesTimeout(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	request := &model.AsyncRequest{
		RequestID:   model.GenerateUUIDWithSuffix("req"),
		UserID:      "user-1",
		ProductID:   "prd_1",
		Quantity:    1,
		Status:      model.RequestProcessing,
		SubmittedAt: time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, engine.saveRequest(ctx, request))

	engine.setRequestOutcome(ctx, request.RequestID, model.RequestTimeout, "", "no outcome before deadline")

	// the slow consumer finishes after the watchdog gave up
	engine.setRequestOutcome(ctx, request.RequestID, model.RequestSuccess, "ord_2", "")

	stored, err := engine.GetAsyncRequest(ctx, request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestSuccess, stored.Status)
	assert.Equal(t, "ord_2", stored.OrderID)
}

func TestGetUserRequests(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	userID := gofakeit.UUID()
	for i := 0; i < 3; i++ {
		request := &model.AsyncRequest{
			RequestID:   model.GenerateUUIDWithSuffix("req"),
			UserID:      userID,
			ProductID:   "prd_1",
			Quantity:    1,
			Status:      model.RequestPending,
			SubmittedAt: time.Now(),
			UpdatedAt:   time.Now(),
		}
		require.NoError(t, engine.saveRequest(ctx, request))
	}

	requests, err := engine.GetUserRequests(ctx, userID, 10)
	require.NoError(t, err)
	assert.Len(t, requests, 3)
}
