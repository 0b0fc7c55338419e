package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that need to decide between
// retrying, switching providers, or surfacing the error as terminal.
type Kind string

const (
	KindUnsupportedURL       Kind = "UNSUPPORTED_URL"
	KindFetchFailed          Kind = "FETCH_FAILED"
	KindAuthMissing          Kind = "AUTH_MISSING"
	KindContentPolicyBlocked Kind = "CONTENT_POLICY_BLOCKED"
	KindAnalysisFailed       Kind = "ANALYSIS_FAILED"
	KindPoolExhausted        Kind = "POOL_EXHAUSTED"
	KindQueueFull            Kind = "QUEUE_FULL"
	KindCapacityExceeded     Kind = "CAPACITY_EXCEEDED"
	KindResourcePressure     Kind = "RESOURCE_PRESSURE"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Ef(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or ""
// when err carries no Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the caller may retry later without changing
// the request. Terminal kinds (bad URL, exhausted fetch, provider refusal)
// return false.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindPoolExhausted, KindQueueFull, KindCapacityExceeded, KindResourcePressure:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)
