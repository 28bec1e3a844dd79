package apicore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType discriminates the error taxonomy. Status errors carry the bucket
// their status code falls into; everything else describes where in the
// pipeline the failure happened.
type ErrorType string

const (
	// ErrorTypeConnection marks transport-level failures before a response
	// arrived (refused connections, DNS failures, broken pipes).
	ErrorTypeConnection ErrorType = "Connection"
	// ErrorTypeTimeout marks a timed-out send or body read.
	ErrorTypeTimeout ErrorType = "Timeout"

	ErrorTypeBadRequest          ErrorType = "BadRequest"
	ErrorTypeAuthentication      ErrorType = "Authentication"
	ErrorTypePermissionDenied    ErrorType = "PermissionDenied"
	ErrorTypeNotFound            ErrorType = "NotFound"
	ErrorTypeConflict            ErrorType = "Conflict"
	ErrorTypeUnprocessableEntity ErrorType = "UnprocessableEntity"
	ErrorTypeRateLimit           ErrorType = "RateLimit"
	ErrorTypeInternalServer      ErrorType = "InternalServer"
	// ErrorTypeStatus is the catch-all for non-2xx codes without a bucket.
	ErrorTypeStatus ErrorType = "Status"

	// ErrorTypeResponseValidation marks an unusable success response: wrong
	// content type or a body that failed decoding. Never retried.
	ErrorTypeResponseValidation ErrorType = "ResponseValidation"
	// ErrorTypeMissingStreamHandler marks a streaming request issued without
	// a stream factory, either per-call or as a client default.
	ErrorTypeMissingStreamHandler ErrorType = "MissingStreamHandler"
	// ErrorTypeConfig marks programmer misuse (invalid client configuration,
	// ambiguous page info, duplicate multipart keys). Never retried.
	ErrorTypeConfig ErrorType = "Config"
)

// Error is the single error value surfaced by this package. It always carries
// the request that failed and, when one was received, the response and its
// body for diagnostics.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int

	// Body holds the decoded JSON error payload when the server sent one;
	// RawBody always holds the undecoded bytes.
	Body    any
	RawBody []byte

	Request  *http.Request
	Response *http.Response
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("apicore: %s: %s (%v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("apicore: %s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches on Type so callers can probe with errors.Is(err, &Error{Type: ...}).
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type
	}
	return false
}

// IsRetryable reports whether err represents a transient failure that may
// succeed on a fresh attempt. Configuration, validation and fatal-timeout
// errors are never retryable.
func IsRetryable(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Type {
	case ErrorTypeConnection, ErrorTypeConflict, ErrorTypeRateLimit, ErrorTypeInternalServer:
		return true
	default:
		return false
	}
}

// statusErrorType maps a non-2xx status code to its taxonomy bucket.
func statusErrorType(code int) ErrorType {
	switch {
	case code == 400:
		return ErrorTypeBadRequest
	case code == 401:
		return ErrorTypeAuthentication
	case code == 403:
		return ErrorTypePermissionDenied
	case code == 404:
		return ErrorTypeNotFound
	case code == 409:
		return ErrorTypeConflict
	case code == 422:
		return ErrorTypeUnprocessableEntity
	case code == 429:
		return ErrorTypeRateLimit
	case code >= 500:
		return ErrorTypeInternalServer
	default:
		return ErrorTypeStatus
	}
}

// newStatusError classifies a fully-drained non-2xx response. The body is
// decoded as JSON when possible; otherwise the raw text is retained and the
// message falls back to "Error code: {status}".
func newStatusError(req *http.Request, resp *http.Response, rawBody []byte) *Error {
	text := strings.TrimSpace(string(rawBody))

	var body any = text
	var msg string
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err == nil && text != "" {
		body = decoded
		msg = fmt.Sprintf("Error code: %d - %v", resp.StatusCode, decoded)
	} else if text != "" {
		msg = text
	} else {
		msg = fmt.Sprintf("Error code: %d", resp.StatusCode)
	}

	return &Error{
		Type:       statusErrorType(resp.StatusCode),
		Message:    msg,
		StatusCode: resp.StatusCode,
		Body:       body,
		RawBody:    rawBody,
		Request:    req,
		Response:   resp,
	}
}

func newConnectionError(req *http.Request, cause error) *Error {
	return &Error{
		Type:    ErrorTypeConnection,
		Message: "connection error",
		Request: req,
		Cause:   cause,
	}
}

func newTimeoutError(req *http.Request, cause error) *Error {
	return &Error{
		Type:    ErrorTypeTimeout,
		Message: "request timed out",
		Request: req,
		Cause:   cause,
	}
}

func newResponseValidationError(req *http.Request, resp *http.Response, msg string, cause error) *Error {
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	return &Error{
		Type:       ErrorTypeResponseValidation,
		Message:    msg,
		StatusCode: statusCode,
		Request:    req,
		Response:   resp,
		Cause:      cause,
	}
}

func newConfigError(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Message: fmt.Sprintf(format, args...),
	}
}

func newMissingStreamHandlerError() *Error {
	return &Error{
		Type:    ErrorTypeMissingStreamHandler,
		Message: "stream requested but no stream factory was given and the client has no default",
	}
}
