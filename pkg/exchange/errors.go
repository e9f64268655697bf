package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrOrderNotFound reports an amend or cancel against an order id the
// exchange no longer knows.
var ErrOrderNotFound = errors.New("order not found")

// ErrorKind classifies gateway failures for the audit trail.
type ErrorKind string

const (
	ErrorKindConnection ErrorKind = "Connection"
	ErrorKindTimeout    ErrorKind = "Timeout"
	ErrorKindAPI        ErrorKind = "API"
	ErrorKindUnknown    ErrorKind = "Unknown"
)

// GatewayError wraps a failed exchange call with its request context.
type GatewayError struct {
	Kind   ErrorKind
	URL    string
	Params string
	Err    error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s error: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ClassifyError maps a transport error to an ErrorKind.
func ClassifyError(err error) ErrorKind {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrorKindTimeout
	case errors.As(err, &netErr):
		return ErrorKindConnection
	default:
		return ErrorKindUnknown
	}
}

// ErrorRecorder persists gateway errors for operator inspection. Recording
// must never fail the calling operation.
type ErrorRecorder interface {
	RecordGatewayError(ctx context.Context, kind ErrorKind, url, params, detail string)
}
