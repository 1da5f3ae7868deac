package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed transport could not be opened
	ErrConnectionFailed = errors.New("stream connection failed")

	// ErrSubscriptionRejected venue refused a subscribe request
	ErrSubscriptionRejected = errors.New("subscription rejected")

	// ErrMalformedFrame inbound frame could not be decoded
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrStreamClosed transport closed while streaming
	ErrStreamClosed = errors.New("stream closed")

	// ErrAckTimeout no subscribe ack within the bounded wait
	ErrAckTimeout = errors.New("subscribe ack timed out")

	// ErrInvalidState operation not allowed in the current state
	ErrInvalidState = errors.New("invalid session state")
)

// RejectedError carries the venue's reason for refusing a subscription.
type RejectedError struct {
	SecurityID string
	TrID       string
	Code       string
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("subscription rejected: %s/%s: %s (%s)", e.TrID, e.SecurityID, e.Reason, e.Code)
}

func (e *RejectedError) Unwrap() error { return ErrSubscriptionRejected }

// FrameError describes why a raw frame could not be decoded.
type FrameError struct {
	Raw    string
	Fields int
	Reason string
}

func (e *FrameError) Error() string {
	raw := e.Raw
	if len(raw) > 64 {
		raw = raw[:64] + "..."
	}
	return fmt.Sprintf("malformed frame: %s (fields=%d, raw=%q)", e.Reason, e.Fields, raw)
}

func (e *FrameError) Unwrap() error { return ErrMalformedFrame }
