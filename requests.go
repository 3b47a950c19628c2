package seckill

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/flashmart/seckill/config"
	"github.com/flashmart/seckill/internal/apierror"
	"github.com/flashmart/seckill/model"
)

const (
	requestStatusKeyPrefix  = "seckill:request:status:"
	requestHistoryKeyPrefix = "seckill:request:user:"
	requestHistoryLimit     = 100

	// asyncResultTimeout bounds how long a submitted request may sit
	// without a terminal outcome before the watchdog marks it TIMEOUT.
	asyncResultTimeout = 30 * time.Second
)

func requestStatusKey(requestID string) string {
	return requestStatusKeyPrefix + requestID
}

// SubmitAsync is the asynchronous purchase path: record a PENDING request,
// publish it to the broker and hand back the request ID for polling. The
// idempotency token is optional here: the broker dedupes on the request ID
// and the consumer keeps a processed marker, so a submission without a token
// still cannot buy twice. A supplied token is burned so form double-submits
// are rejected before they reach the queue. A watchdog marks the request
// TIMEOUT if no consumer reports a terminal outcome in time.
func (l *Seckill) SubmitAsync(ctx context.Context, userID, productID string, quantity int64, token string) (*model.AsyncRequest, error) {
	ctx, span := tracer.Start(ctx, "Submitting async seckill request")
	defer span.End()

	if err := validatePurchase(userID, productID, quantity); err != nil {
		return nil, err
	}

	if token != "" {
		ok, err := l.tokens.BurnToken(ctx, userID, token)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Token store unavailable", err)
		}
		if !ok {
			return nil, apierror.NewAPIError(apierror.ErrValidation, "Idempotency token is invalid or already used", nil)
		}
	}

	if !l.limiter.Allow(ctx, asyncSubmitPolicy, userID, "") {
		return nil, apierror.NewAPIError(apierror.ErrRateLimited, "Too many submissions, try again shortly", nil)
	}

	now := time.Now()
	request := &model.AsyncRequest{
		RequestID:   model.GenerateUUIDWithSuffix("req"),
		UserID:      userID,
		ProductID:   productID,
		Quantity:    quantity,
		Status:      model.RequestPending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := l.saveRequest(ctx, request); err != nil {
		return nil, err
	}

	message := &model.SeckillMessage{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		RequestID: request.RequestID,
	}
	if err := l.queue.Enqueue(ctx, message); err != nil {
		logAndRecordError(span, "enqueue error: ", err)
		l.setRequestOutcome(context.WithoutCancel(ctx), request.RequestID, model.RequestFailed, "", "broker unavailable")
		return nil, apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Could not enqueue request", err)
	}

	if err := l.transitionRequest(ctx, request.RequestID, model.RequestEnqueued, nil); err != nil {
		logrus.Warnf("failed to mark request %s enqueued: %v", request.RequestID, err)
	}
	request.Status = model.RequestEnqueued

	go l.watchRequest(request.RequestID, asyncResultTimeout)

	return request, nil
}

// GetAsyncRequest returns the pollable record for a request ID.
func (l *Seckill) GetAsyncRequest(ctx context.Context, requestID string) (*model.AsyncRequest, error) {
	if requestID == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "Request ID is required", nil)
	}
	data, err := l.redis.Get(ctx, requestStatusKey(requestID)).Bytes()
	if err == redis.Nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Request %s not found or expired", requestID), err)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Request store unavailable", err)
	}

	request := model.AsyncRequest{}
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Corrupt request record", err)
	}
	return &request, nil
}

// GetUserRequests returns the user's most recent request records, newest
// first. Records whose TTL already expired are skipped.
func (l *Seckill) GetUserRequests(ctx context.Context, userID string, limit int) ([]*model.AsyncRequest, error) {
	if userID == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "User ID is required", nil)
	}
	if limit <= 0 || limit > requestHistoryLimit {
		limit = requestHistoryLimit
	}

	ids, err := l.redis.LRange(ctx, requestHistoryKeyPrefix+userID, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Request store unavailable", err)
	}

	requests := []*model.AsyncRequest{}
	for _, id := range ids {
		request, err := l.GetAsyncRequest(ctx, id)
		if err != nil {
			continue
		}
		requests = append(requests, request)
	}
	return requests, nil
}

func (l *Seckill) saveRequest(ctx context.Context, request *model.AsyncRequest) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	data, err := json.Marshal(request)
	if err != nil {
		return err
	}
	if err := l.redis.Set(ctx, requestStatusKey(request.RequestID), data, cnf.Queue.RequestTTL()).Err(); err != nil {
		return apierror.NewAPIError(apierror.ErrDependencyUnavailable, "Request store unavailable", err)
	}

	historyKey := requestHistoryKeyPrefix + request.UserID
	pipe := l.redis.Pipeline()
	pipe.LPush(ctx, historyKey, request.RequestID)
	pipe.LTrim(ctx, historyKey, 0, requestHistoryLimit-1)
	pipe.Expire(ctx, historyKey, cnf.Queue.RequestTTL())
	if _, err := pipe.Exec(ctx); err != nil {
		logrus.Warnf("failed to record request history for user %s: %v", request.UserID, err)
	}
	return nil
}

// transitionRequest applies a status change with the terminal guard: a
// request that already reached SUCCESS or FAILED is never rewritten. TIMEOUT
// is the one terminal state a later consumer outcome may overwrite, because
// the watchdog writes it on suspicion, not knowledge.
func (l *Seckill) transitionRequest(ctx context.Context, requestID string, status model.RequestStatus, mutate func(*model.AsyncRequest)) error {
	request, err := l.GetAsyncRequest(ctx, requestID)
	if err != nil {
		return err
	}

	if request.Status.Terminal() {
		if request.Status != model.RequestTimeout || !status.Terminal() {
			return nil
		}
	}

	request.Status = status
	request.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(request)
	}

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}
	data, err := json.Marshal(request)
	if err != nil {
		return err
	}
	return l.redis.Set(ctx, requestStatusKey(requestID), data, cnf.Queue.RequestTTL()).Err()
}

// setRequestOutcome records a terminal outcome with its order ID or failure
// reason.
func (l *Seckill) setRequestOutcome(ctx context.Context, requestID string, status model.RequestStatus, orderID, reason string) {
	err := l.transitionRequest(ctx, requestID, status, func(r *model.AsyncRequest) {
		r.OrderID = orderID
		r.Reason = reason
	})
	if err != nil {
		logrus.Errorf("failed to record outcome %s for request %s: %v", status, requestID, err)
	}
}

// watchRequest marks the request TIMEOUT if it has not reached a terminal
// state when the deadline passes. A consumer that finishes late still gets
// to overwrite the TIMEOUT with the real outcome.
func (l *Seckill) watchRequest(requestID string, wait time.Duration) {
	time.Sleep(wait)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	request, err := l.GetAsyncRequest(ctx, requestID)
	if err != nil {
		return
	}
	if request.Status.Terminal() {
		return
	}
	l.setRequestOutcome(ctx, requestID, model.RequestTimeout, "", "no outcome before deadline")
}
