// Package errors provides the edge proxy's typed error kinds, each carrying
// the HTTP status the request-path handler should map it to.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error kind.
type Code string

const (
	// CodeConfigurationFault is fatal, startup-only.
	CodeConfigurationFault Code = "CONFIGURATION_FAULT"
	// CodeUpstreamUnavailable is transient: network failure, 5xx, 429.
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	// CodeUpstreamRejected is semi-permanent: 401/403 on a specific token.
	CodeUpstreamRejected Code = "UPSTREAM_REJECTED"
	// CodeUpstreamProtocol is a bug-class: unparseable body, missing ETag.
	CodeUpstreamProtocol Code = "UPSTREAM_PROTOCOL"
	// CodeTokenInvalidClient is expected: unknown or rejected client token.
	CodeTokenInvalidClient Code = "TOKEN_INVALID_CLIENT"
	// CodeContextMissingForFrontend: frontend token, no cache entry for its
	// environment/project.
	CodeContextMissingForFrontend Code = "CONTEXT_MISSING_FOR_FRONTEND"
	// CodeSaturation: metrics buffer full.
	CodeSaturation Code = "SATURATION"
)

// Error is a structured error carrying an HTTP status and a machine-readable
// code callers can switch on, independent of the Go error type.
type Error struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches a detail key/value and returns e for chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newErr(code Code, message string, status int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status}
}

func wrapErr(code Code, message string, status int, err error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ConfigurationFault reports a fatal startup misconfiguration: mutually
// exclusive persistence targets, missing upstream URL in Edge mode,
// unreadable TLS material.
func ConfigurationFault(message string, err error) *Error {
	return wrapErr(CodeConfigurationFault, message, http.StatusInternalServerError, err)
}

// UpstreamUnavailable reports a transient upstream failure: network error,
// 5xx, or 429. Action: retry with backoff, keep serving from cache.
func UpstreamUnavailable(message string, err error) *Error {
	return wrapErr(CodeUpstreamUnavailable, message, http.StatusBadGateway, err)
}

// UpstreamRejected reports a 401/403 against a specific token. Action: mark
// that token Invalid; other tokens are unaffected.
func UpstreamRejected(message string) *Error {
	return newErr(CodeUpstreamRejected, message, http.StatusForbidden)
}

// UpstreamProtocol reports an unparseable body or a 200 missing its ETag.
// Action: drop the response, log, retain the old cache entry.
func UpstreamProtocol(message string, err error) *Error {
	return wrapErr(CodeUpstreamProtocol, message, http.StatusBadGateway, err)
}

// TokenInvalidClient reports a client-presented unknown or rejected token.
func TokenInvalidClient(message string) *Error {
	return newErr(CodeTokenInvalidClient, message, http.StatusForbidden)
}

// ContextMissingForFrontend reports a frontend token whose
// environment/project has no cache entry yet.
func ContextMissingForFrontend(environment, project string) *Error {
	return newErr(CodeContextMissingForFrontend,
		"no cached context for the requested environment/project", 511).
		WithDetails("environment", environment).
		WithDetails("project", project)
}

// Saturation reports a full metrics buffer. Action: drop + counter, never
// fail the request.
func Saturation(message string) *Error {
	return newErr(CodeSaturation, message, http.StatusOK)
}

// As is a thin re-export of errors.As so callers importing this package do
// not also need to import the standard errors package for the common case.
func As(err error, target interface{}) bool { return errors.As(err, target) }
