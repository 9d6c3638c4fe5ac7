package push

import (
	"errors"
	"fmt"
	"net/http"
)

// FailureKind is the closed set of provider failure categories. Raw provider
// errors are classified exactly once, at the Sender boundary; everything
// above works with the kind.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureInvalidToken
	FailureTokenNotRegistered
	FailureInvalidArgument
	FailureUnauthenticated
	FailureUnavailable
	FailureInternal
)

// Provider error codes surfaced to API clients in the errorCode field.
const (
	CodeInvalidToken       = "messaging/invalid-registration-token"
	CodeTokenNotRegistered = "messaging/registration-token-not-registered"
	CodeInvalidArgument    = "messaging/invalid-argument"
	CodeAuthentication     = "messaging/authentication-error"
	CodeServerUnavailable  = "messaging/server-unavailable"
	CodeInternal           = "messaging/internal-error"
	CodeUnknown            = "UNKNOWN_ERROR"
)

// SendError is a categorized provider failure.
type SendError struct {
	Kind    FailureKind
	Message string // human-readable, provider detail preserved
	Err     error  // underlying provider error, may be nil
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SendError) Unwrap() error { return e.Err }

// Code returns the provider error code for this failure category.
func (e *SendError) Code() string {
	switch e.Kind {
	case FailureInvalidToken:
		return CodeInvalidToken
	case FailureTokenNotRegistered:
		return CodeTokenNotRegistered
	case FailureInvalidArgument:
		return CodeInvalidArgument
	case FailureUnauthenticated:
		return CodeAuthentication
	case FailureUnavailable:
		return CodeServerUnavailable
	case FailureInternal:
		return CodeInternal
	default:
		return CodeUnknown
	}
}

// HTTPStatus maps the failure category to the REST status the gateway
// responds with.
func (e *SendError) HTTPStatus() int {
	switch e.Kind {
	case FailureInvalidToken, FailureTokenNotRegistered, FailureInvalidArgument:
		return http.StatusBadRequest
	case FailureUnauthenticated:
		return http.StatusUnauthorized
	case FailureUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsClientFault reports whether the failure is the caller's: retrying the
// same request cannot succeed.
func (e *SendError) IsClientFault() bool {
	return e.HTTPStatus() < 500 && e.Kind != FailureUnauthenticated
}

// AsSendError unwraps err into a *SendError, or wraps it as FailureUnknown
// so callers always see the closed variant.
func AsSendError(err error) *SendError {
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	return &SendError{Kind: FailureUnknown, Message: err.Error(), Err: err}
}
