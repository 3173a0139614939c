package source

import (
	"context"
	"errors"
	"fmt"
)

// Requester is the authenticated API capability the scanner and the
// subscription components depend on.
type Requester interface {
	// Do sends a request with body JSON-encoded (nil for none) and
	// decodes the response into result (nil to discard it).
	//
	// Failures reaching the API or non-2xx answers are returned as
	// *TransportError; a body that cannot be decoded into result is
	// returned as *ProtocolError.
	Do(ctx context.Context, method, path string, body, result any) error
}

// TransportError reports a network or HTTP-layer failure. The wrapped
// error is an *APIError for non-2xx responses.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response body that does not have the shape
// the caller expected.
type ProtocolError struct {
	Method string
	Path   string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// APIError is a non-2xx answer from the remote API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// AuthError indicates that authentication has failed or expired.
// It is returned by source clients when a 401 response is received.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsTransport reports whether err (or any error in its chain) is a
// TransportError.
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// IsProtocol reports whether err (or any error in its chain) is a
// ProtocolError.
func IsProtocol(err error) bool {
	var protocolErr *ProtocolError
	return errors.As(err, &protocolErr)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// StatusCode returns the HTTP status of an *APIError in err's chain,
// or 0 when there is none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
