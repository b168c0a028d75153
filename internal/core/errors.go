package core

import "errors"

// Error codes for event-level failures reported back to a connection.
const (
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeBadPayload     = "bad_payload"
	ErrCodeHandlerFailure = "handler_failure"
)

var (
	// ErrUnauthenticated means the credential was absent, malformed,
	// expired, or signed with an unrecognized key.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrIdentityRejected means the credential was structurally valid but
	// the resolved user does not exist or is not active.
	ErrIdentityRejected = errors.New("identity rejected")
)

// GatewayError wraps a code and human-readable message for failures that
// stay local to a single inbound event. It never tears down the connection.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return e.Message
}

func gatewayError(code, msg string) *GatewayError {
	return &GatewayError{Code: code, Message: msg}
}
