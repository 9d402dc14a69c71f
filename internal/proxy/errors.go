package proxy

import (
	"errors"
	"fmt"
)

// ErrMalformedPayload is wrapped by FatalError when the proxy body cannot be decoded.
var ErrMalformedPayload = errors.New("malformed proxy payload")

// FatalError reports a request that was abandoned without retry.
type FatalError struct {
	URL        string
	Status     int
	RetryCount int
	Reason     string
	Err        error
}

func (e *FatalError) Error() string {
	msg := fmt.Sprintf("request abandoned after %d retries: <%d %s>: %s", e.RetryCount, e.Status, e.URL, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
