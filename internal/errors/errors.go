package errors

import (
	"errors"
	"fmt"
)

// Common error types for the gateway
var (
	// Session errors
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrExpired             = errors.New("token expired")
	ErrForbidden           = errors.New("forbidden")
	ErrMFASetupRequired    = errors.New("mfa setup required")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// Token errors
	ErrMalformedToken = errors.New("malformed token")
	ErrNoAccessToken  = errors.New("no access token")
	ErrNoRefreshToken = errors.New("no refresh token")

	// Role errors
	ErrUnknownRole = errors.New("unknown role")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
)

// API error codes returned to callers. These are stable and safe to match on.
const (
	CodeUnauthorized        = "unauthorized"
	CodeForbidden           = "forbidden"
	CodeMFASetupRequired    = "mfa_setup_required"
	CodeUpstreamUnreachable = "account_service_unreachable"
	CodeInvalidRequest      = "invalid_request"
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// AtTrustBoundary collapses failures that prevent proving an identity into
// ErrUnauthenticated. The original cause stays in the chain for logging.
func AtTrustBoundary(err error) error {
	if err == nil {
		return nil
	}
	if Is(err, ErrUnauthenticated) {
		return err
	}
	if Is(err, ErrUpstreamUnreachable) || Is(err, ErrMalformedToken) || Is(err, ErrExpired) ||
		Is(err, ErrNoAccessToken) || Is(err, ErrNoRefreshToken) || Is(err, ErrUnknownRole) {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return err
}

// Code maps an error onto the stable API error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrMFASetupRequired):
		return CodeMFASetupRequired
	case Is(err, ErrForbidden):
		return CodeForbidden
	case Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	default:
		return CodeUnauthorized
	}
}
