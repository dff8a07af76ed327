package domain

import (
	"context"
	"time"
)

type Service interface {
	// Meter admits or denies one metered call. Denial is a result, not an
	// error: it carries what the client needs to back off.
	Meter(ctx context.Context, req MeterRequest) (*MeterResult, error)
	// Heartbeat is the liveness signal of an activation.
	Heartbeat(ctx context.Context, req HeartbeatRequest) error
}

type MeterRequest struct {
	Certificate string `json:"certificate"`
	Bucket      string `json:"bucket"`
	Cost        int64  `json:"cost"`
}

type MeterResult struct {
	Admitted  bool      `json:"admitted"`
	Limited   bool      `json:"limited"`
	Limit     int64     `json:"limit,omitempty"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
}

type HeartbeatRequest struct {
	Certificate string `json:"certificate"`
	// HashedUserID is optional; it is re-hashed server side before storage
	// so the raw value is never persisted even if a client sends one.
	HashedUserID string `json:"hashed_user_id,omitempty"`
}
