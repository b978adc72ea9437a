package brunt

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

var (
	ErrMissingCredentials     = errors.New("incomplete login details provided")
	ErrAuthenticationRejected = errors.New("bad login details")
)

type TransportKind int

const (
	Failed TransportKind = iota
	Interrupted
	TimedOut
)

func (k TransportKind) String() string {
	switch k {
	case Interrupted:
		return "interrupted"
	case TimedOut:
		return "timed out"
	default:
		return "failed"
	}
}

// TransportError is a request that never produced an HTTP response.
type TransportError struct {
	Op   string
	Kind TransportKind
	Err  error
}

func (e *TransportError) Reason() string {
	return fmt.Sprintf("%s %s", e.Op, e.Kind)
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason(), e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(op string, err error) *TransportError {
	kind := Failed

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		kind = Interrupted
	case errors.Is(err, context.DeadlineExceeded):
		kind = TimedOut
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = TimedOut
	}

	return &TransportError{Op: op, Kind: kind, Err: err}
}

// IsTransportFailure reports whether err carries a *TransportError.
func IsTransportFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

type rejectedError struct {
	status int
}

func (e rejectedError) Error() string {
	return fmt.Sprintf("%s (status %d)", ErrAuthenticationRejected, e.status)
}

func (e rejectedError) Is(target error) bool {
	return target == ErrAuthenticationRejected
}

type HTTPStatusError struct {
	Op     string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}

type ParseError struct {
	Index int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("thing list element %d: missing %s", e.Index, e.Field)
	case e.Index >= 0:
		return fmt.Sprintf("thing list element %d: %s", e.Index, e.Err)
	}
	return fmt.Sprintf("thing list: %s", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
