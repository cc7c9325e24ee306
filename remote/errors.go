package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// ConnectivityError is a transport failure, timeout, or server-side 5xx.
// Retrying later may succeed.
type ConnectivityError struct {
	Op     string
	Status int
	Err    error
}

func (e *ConnectivityError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s: server unavailable (HTTP %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s: unreachable: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ValidationError is a business rejection. The server's fields are kept verbatim.
type ValidationError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("remote %s: rejected (HTTP %d", e.Op, e.Status)
	if e.Code != "" {
		msg += " " + e.Code
	}
	msg += "): " + e.Message
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// AuthError means the session is missing, expired, or not allowed.
type AuthError struct {
	Op      string
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("remote %s: not authorized (HTTP %d): %s", e.Op, e.Status, e.Message)
}

// Error kinds, as recorded on failed mutations.
const (
	KindConnectivity = "connectivity"
	KindValidation   = "validation"
	KindAuth         = "auth"
	KindUnknown      = "unknown"
)

// KindOf classifies err into one of the error kinds.
func KindOf(err error) string {
	var ce *ConnectivityError
	var ve *ValidationError
	var ae *AuthError
	switch {
	case errors.As(err, &ae):
		return KindAuth
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ce):
		return KindConnectivity
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether the failure may clear up without user action.
func IsRetryable(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// apiError is the PostgREST error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
	// Storage and auth endpoints use these instead.
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	StatusCode       string `json:"statusCode"`
}

func (a apiError) text() string {
	switch {
	case a.Message != "":
		return a.Message
	case a.ErrorDescription != "":
		return a.ErrorDescription
	default:
		return a.Error
	}
}

// classify turns a resty outcome into nil or one of the typed errors.
func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &ConnectivityError{Op: op, Err: err}
	}
	status := resp.StatusCode()
	if status < http.StatusBadRequest {
		return nil
	}

	var body apiError
	_ = json.Unmarshal(resp.Body(), &body)
	text := body.text()
	if text == "" {
		text = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Op: op, Status: status, Message: text}
	case status >= http.StatusInternalServerError,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests:
		return &ConnectivityError{Op: op, Status: status, Err: errors.New(text)}
	default:
		return &ValidationError{Op: op, Status: status, Code: body.Code, Message: text,
			Details: body.Details, Hint: body.Hint}
	}
}
