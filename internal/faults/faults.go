// Package faults classifies errors from external collaborators and
// provides retry with exponential backoff for the transient kind.
package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind sorts collaborator failures by how the pipeline should react.
type Kind int

const (
	// KindTransient covers timeouts, connection errors and rate-limit
	// responses. Retryable.
	KindTransient Kind = iota
	// KindPermanent covers auth failures, malformed responses and
	// not-found. Never retried.
	KindPermanent
	// KindData marks a malformed test case. The case is skipped and
	// recorded, the rule continues.
	KindData
	// KindTimeout marks a rule- or job-level deadline that elapsed.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindData:
		return "data"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error wraps a collaborator failure with its classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable infrastructure failure.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable infrastructure failure.
func Permanent(op string, err error) error {
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

// Data wraps err as a malformed-input failure scoped to one test case.
func Data(op string, err error) error {
	return &Error{Kind: KindData, Op: op, Err: err}
}

// Timeout wraps err as an elapsed deadline.
func Timeout(op string, err error) error {
	return &Error{Kind: KindTimeout, Op: op, Err: err}
}

// Dataf is Data with a formatted message and no cause.
func Dataf(op, format string, v ...any) error {
	return &Error{Kind: KindData, Op: op, Err: fmt.Errorf(format, v...)}
}

// FromStatus maps an HTTP status to the taxonomy: nil below 400, 5xx and
// 429 transient, everything else permanent. Not-found is permanent; a
// missing video will not appear on retry.
func FromStatus(op string, status int) error {
	switch {
	case status < 400:
		return nil
	case status >= 500 || status == http.StatusTooManyRequests:
		return Transient(op, fmt.Errorf("%d %s", status, http.StatusText(status)))
	default:
		return Permanent(op, fmt.Errorf("%d %s", status, http.StatusText(status)))
	}
}

// KindOf returns the classification of err. Unclassified errors are
// treated as permanent so nothing retries blindly. Context cancellation
// and deadline expiry map to the timeout kind.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindPermanent
}

// Retryable reports whether err should be retried.
func Retryable(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}
