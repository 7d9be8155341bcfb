package fiterr

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrorKind classifies fit failures so that callers can decide whether a
// partial result is acceptable.
type ErrorKind int

const (
	ConfigurationError ErrorKind = iota + 1
	ThreadAbort
	Timeout
	InvariantViolation
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationError:
		return "configuration"
	case ThreadAbort:
		return "thread-abort"
	case Timeout:
		return "timeout"
	case InvariantViolation:
		return "invariant-violation"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FitError is the typed failure raised by the fitting core.
type FitError struct {
	Kind ErrorKind

	// Completed is the fraction of work units finished when the failure was raised,
	// only meaningful for ThreadAbort and Timeout.
	Completed float64
	Elapsed   time.Duration

	Err error
}

func (e *FitError) Error() string {
	switch e.Kind {
	case ThreadAbort, Timeout:
		return fmt.Sprintf("fit %s after %s (%.1f%% completed): %v",
			e.Kind, e.Elapsed.Round(time.Millisecond), e.Completed*100.0, e.Err)
	}
	return fmt.Sprintf("fit %s: %v", e.Kind, e.Err)
}

func (e *FitError) Unwrap() error { return e.Err }

func NewConfigError(format string, args ...interface{}) error {
	return &FitError{Kind: ConfigurationError, Err: errors.Errorf(format, args...)}
}

func NewInvariantError(format string, args ...interface{}) error {
	return &FitError{Kind: InvariantViolation, Err: errors.Errorf(format, args...)}
}

// WrapKind tags err with kind unless err already carries a typed failure.
func WrapKind(err error, kind ErrorKind) error {
	if err == nil {
		return nil
	}

	if _, ok := AsFitError(err); ok {
		return err
	}

	return &FitError{Kind: kind, Err: err}
}

// AsFitError looks through pkg/errors wrapping for a *FitError.
func AsFitError(err error) (*FitError, bool) {
	for err != nil {
		if fe, ok := err.(*FitError); ok {
			return fe, true
		}

		switch e := err.(type) {
		case interface{ Cause() error }:
			err = e.Cause()
		case interface{ Unwrap() error }:
			err = e.Unwrap()
		default:
			return nil, false
		}
	}
	return nil, false
}

func IsKind(err error, kind ErrorKind) bool {
	fe, ok := AsFitError(err)
	return ok && fe.Kind == kind
}
