package opencode

import (
	"errors"
	"fmt"
)

// ErrorKind classifies client failures.
type ErrorKind string

const (
	KindNetwork  ErrorKind = "network"  // no response: refused, timeout, DNS
	KindProtocol ErrorKind = "protocol" // non-2xx status
	KindParse    ErrorKind = "parse"    // body did not decode
	KindUnknown  ErrorKind = "unknown"
)

// TransportError wraps a failure to obtain a response.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: cannot reach agent server at %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx response. Body is the raw response text.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// DecodeError is a 2xx response whose body could not be decoded.
type DecodeError struct {
	Op   string
	Body string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode response: %v (body: %s)", e.Op, e.Err, e.Body)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Classify returns the kind of a client error.
func Classify(err error) ErrorKind {
	var transportErr *TransportError
	var apiErr *APIError
	var decodeErr *DecodeError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &transportErr):
		return KindNetwork
	case errors.As(err, &apiErr):
		return KindProtocol
	case errors.As(err, &decodeErr):
		return KindParse
	default:
		return KindUnknown
	}
}

// StatusCode returns the HTTP status of an APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
