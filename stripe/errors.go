package stripe

import (
	"errors"
	"fmt"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v82"
)

// StripeError represents a Stripe-specific error
type StripeError struct {
	Code    string
	Message string
	Type    string
	Err     error
}

func (e *StripeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stripe error [%s]: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("stripe error [%s]: %s", e.Code, e.Message)
}

func (e *StripeError) Unwrap() error {
	return e.Err
}

// Is matches any StripeError with the same code, so the variables below can
// be used with errors.Is.
func (e *StripeError) Is(target error) bool {
	t, ok := target.(*StripeError)
	return ok && t.Code == e.Code
}

// Error codes.
const (
	CodeInvalidEvent       = "invalid_event"
	CodeWebhookValidation  = "webhook_validation"
	CodeInvalidParams      = "invalid_params"
	CodeNotConfigured      = "not_configured"
	CodeCustomerNotFound   = "customer_not_found"
	CodeAPICallFailed      = "api_call_failed"
	CodeRateLimit          = "rate_limit_error"
	CodeTemporary          = "temporary_error"
	CodeAPIConnection      = "api_connection_error"
	CodeResourceMissing    = "resource_missing"
	CodeProcessingFailed   = "processing_failed"
	CodeUnmatchedEventUser = "unmatched_event_user"
)

// Common Stripe errors
var (
	ErrInvalidEvent       = &StripeError{Code: CodeInvalidEvent, Message: "invalid webhook event"}
	ErrWebhookValidation  = &StripeError{Code: CodeWebhookValidation, Message: "webhook signature validation failed"}
	ErrInvalidParams      = &StripeError{Code: CodeInvalidParams, Message: "invalid checkout session parameters"}
	ErrNotConfigured      = &StripeError{Code: CodeNotConfigured, Message: "stripe is not configured"}
	ErrCustomerNotFound   = &StripeError{Code: CodeCustomerNotFound, Message: "stripe customer not found"}
	ErrResourceMissing    = &StripeError{Code: CodeResourceMissing, Message: "stripe resource not found"}
	ErrAPICallFailed      = &StripeError{Code: CodeAPICallFailed, Message: "stripe API call failed"}
	ErrProcessingFailed   = &StripeError{Code: CodeProcessingFailed, Message: "webhook event processing failed"}
	ErrUnmatchedEventUser = &StripeError{Code: CodeUnmatchedEventUser, Message: "webhook event does not match any user"}
)

// NewStripeError creates a new StripeError with the given code, message, and underlying error
func NewStripeError(code, message string, err error) *StripeError {
	return &StripeError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// apiError classifies an error returned by stripe-go. Errors without an API
// response are connection failures.
func apiError(message string, err error) *StripeError {
	var se *stripeapi.Error
	if !errors.As(err, &se) {
		return &StripeError{Code: CodeAPIConnection, Message: message, Err: err}
	}
	e := &StripeError{Code: CodeAPICallFailed, Message: message, Type: string(se.Type), Err: err}
	switch {
	case se.HTTPStatusCode == http.StatusTooManyRequests:
		e.Code = CodeRateLimit
	case se.HTTPStatusCode >= http.StatusInternalServerError || se.Type == stripeapi.ErrorTypeAPI:
		e.Code = CodeTemporary
	case se.HTTPStatusCode == http.StatusNotFound:
		e.Code = CodeResourceMissing
	}
	return e
}

// IsRetryableError reports if the call failed for a temporary reason and can
// be repeated.
func IsRetryableError(err error) bool {
	var stripeErr *StripeError
	if errors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case CodeRateLimit, CodeTemporary, CodeAPIConnection:
			return true
		default:
			return false
		}
	}
	return false
}
