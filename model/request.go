package model

import "time"

// RequestStatus is the lifecycle of an asynchronous seckill request:
// PENDING -> ENQUEUED -> PROCESSING -> {SUCCESS | FAILED | TIMEOUT}.
// TIMEOUT is written by the caller-side watchdog; the consumer may still
// overwrite it later with a terminal outcome, last write observed wins.
type RequestStatus string

const (
	RequestPending    RequestStatus = "PENDING"
	RequestEnqueued   RequestStatus = "ENQUEUED"
	RequestProcessing RequestStatus = "PROCESSING"
	RequestSuccess    RequestStatus = "SUCCESS"
	RequestFailed     RequestStatus = "FAILED"
	RequestTimeout    RequestStatus = "TIMEOUT"
)

// Terminal reports whether the status ends the request lifecycle.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestSuccess, RequestFailed, RequestTimeout:
		return true
	}
	return false
}

// AsyncRequest is the pollable record of a request that went through the
// queue instead of the synchronous path. It lives in the shared store with a
// bounded TTL.
type AsyncRequest struct {
	RequestID   string        `json:"request_id"`
	UserID      string        `json:"user_id"`
	ProductID   string        `json:"product_id"`
	Quantity    int64         `json:"quantity"`
	Status      RequestStatus `json:"status"`
	Retries     int           `json:"retries"`
	OrderID     string        `json:"order_id,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// SeckillMessage is the payload published to the broker for one async
// request.
type SeckillMessage struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	RequestID string `json:"request_id"`
}
