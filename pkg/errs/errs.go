// Package errs defines the error taxonomy shared by the extraction
// pipeline: transport errors (retry exhaustion at the HTTP layer) and
// protocol errors (a service answered, but with an unusable payload).
package errs

import (
	"errors"
	"fmt"
)

// TransportError is returned after the HTTP layer has exhausted its
// retry budget against an endpoint.
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Status   int // last HTTP status, 0 on connection-level failure
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: giving up after %d attempt(s), last status %d", e.Method, e.URL, e.Attempts, e.Status)
	}
	return fmt.Sprintf("%s %s: giving up after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response whose shape or content did not match
// the service contract. Payload carries the offending body for diagnosis.
type ProtocolError struct {
	Service string // "ocr" or "completions"
	Reason  string
	Payload string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Service, e.Reason, truncate(e.Payload, 512))
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is (or wraps) a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// Kind names the error class for log lines.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsTransport(err):
		return "transport"
	case IsProtocol(err):
		return "protocol"
	default:
		return "internal"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
