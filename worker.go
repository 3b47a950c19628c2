package seckill

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/flashmart/seckill/internal/apierror"
	"github.com/flashmart/seckill/model"
)

// processedMarkerTTL keeps consumer idempotency markers around long enough
// to outlive any redelivery of the same request.
const processedMarkerTTL = 24 * time.Hour

// ProcessSeckillTask is the queue consumer. It is idempotent under
// redelivery: a processed marker claimed before the outcome is recorded
// means a redelivered request acks without touching stock again.
//
// Outcome routing: terminal business failures (sold out, already won,
// invalid request) record FAILED and skip the retry queue, going straight to
// the archive. Transient failures return an error so the broker redelivers,
// until the retry budget is spent.
func (l *Seckill) ProcessSeckillTask(ctx context.Context, task *asynq.Task) error {
	ctx, span := tracer.Start(ctx, "Processing queued seckill request")
	defer span.End()

	var message model.SeckillMessage
	if err := json.Unmarshal(task.Payload(), &message); err != nil {
		logrus.Errorf("discarding malformed seckill payload: %v", err)
		return fmt.Errorf("malformed payload: %v: %w", err, asynq.SkipRetry)
	}

	done, err := l.tokens.IsProcessed(ctx, message.RequestID)
	if err != nil {
		return fmt.Errorf("idempotency check failed for request %s: %w", message.RequestID, err)
	}
	if done {
		logrus.Infof("request %s already processed, acking redelivery", message.RequestID)
		return nil
	}

	retryCount, _ := asynq.GetRetryCount(ctx)
	if err := l.transitionRequest(ctx, message.RequestID, model.RequestProcessing, func(r *model.AsyncRequest) {
		r.Retries = retryCount
	}); err != nil {
		logrus.Warnf("failed to mark request %s processing: %v", message.RequestID, err)
	}

	order, err := l.executeSeckill(ctx, message.UserID, message.ProductID, message.Quantity)
	if err == nil {
		if _, err := l.tokens.MarkProcessed(ctx, message.RequestID, processedMarkerTTL); err != nil {
			logrus.Errorf("failed to claim processed marker for request %s: %v", message.RequestID, err)
		}
		l.setRequestOutcome(ctx, message.RequestID, model.RequestSuccess, order.OrderID, "")
		return nil
	}

	if !apierror.Retryable(err) {
		// business outcome, retrying cannot change it
		if _, markErr := l.tokens.MarkProcessed(ctx, message.RequestID, processedMarkerTTL); markErr != nil {
			logrus.Errorf("failed to claim processed marker for request %s: %v", message.RequestID, markErr)
		}
		l.setRequestOutcome(ctx, message.RequestID, model.RequestFailed, "", err.Error())
		return fmt.Errorf("request %s failed: %v: %w", message.RequestID, err, asynq.SkipRetry)
	}

	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retryCount >= maxRetry {
		logrus.Errorf("request %s exhausted its retry budget: %v", message.RequestID, err)
		l.setRequestOutcome(ctx, message.RequestID, model.RequestFailed, "", "retry budget exhausted: "+err.Error())
		return fmt.Errorf("request %s retries exhausted: %v", message.RequestID, err)
	}

	logrus.Warnf("request %s hit a transient failure (attempt %d/%d), leaving it for redelivery: %v", message.RequestID, retryCount+1, maxRetry+1, err)
	return fmt.Errorf("request %s transient failure: %v", message.RequestID, err)
}
