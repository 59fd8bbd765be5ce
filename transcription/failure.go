package transcription

import (
	"errors"
	"fmt"

	"github.com/kbukum/medscribe/httpclient"
)

// Failure is the single error type returned by providers. Network errors,
// non-success statuses, malformed payloads and timeouts all map onto it.
type Failure struct {
	Provider  string
	Message   string
	Retryable bool
	Cause     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("transcription failed (%s): %s", f.Provider, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// NewFailure converts err into a *Failure. A *Failure passes through.
func NewFailure(provider string, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	var he *httpclient.Error
	if errors.As(err, &he) {
		msg := he.Message
		if he.Code == httpclient.ErrCodeTimeout {
			msg = "backend timed out"
		}
		return &Failure{Provider: provider, Message: msg, Retryable: he.Retryable, Cause: err}
	}
	return &Failure{Provider: provider, Message: err.Error(), Cause: err}
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}
