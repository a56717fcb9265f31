// Package errors provides custom error types and definitions for the application.
//
//nolint:lll
package errors

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 401, 403, 404, 409 or 429, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500, 502, 503 or 504.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXXX or 5XXXX.
// There's no correlation between Code and HTTP Status beyond the first digit.
var (
	// Authentication errors (401)
	ErrUnauthorized        = Error{Code: 40001, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("authentication required"), LogLevel: "info"}
	ErrInvalidCredentials  = Error{Code: 40101, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("invalid login credentials"), LogLevel: "info"}
	ErrEmailNotConfirmed   = Error{Code: 40102, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("email not confirmed"), LogLevel: "info"}
	ErrAuthRequestRejected = Error{Code: 40103, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("auth provider rejected the request"), LogLevel: "info"}

	// Validation errors (400)
	ErrEmailMalformed         = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid email format")}
	ErrPasswordTooShort       = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("password must be at least 6 characters")}
	ErrMalformedBody          = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid JSON request body")}
	ErrInvalidUserData        = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid user information provided")}
	ErrMissingCredentials     = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("email and password are required")}
	ErrInvalidPlan            = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid plan"), Message: "Plano inválido"}
	ErrMissingPriceID         = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("price id is required"), Message: "Price ID é obrigatório"}
	ErrMissingCheckoutFields  = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("plan type and user email are required"), Message: "Dados obrigatórios não fornecidos"}
	ErrMalformedURLParam      = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid URL parameter")}
	ErrMissingSignature       = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("missing Stripe-Signature header"), LogLevel: "warn"}
	ErrInvalidSignature       = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid webhook signature"), LogLevel: "warn"}
	ErrInvalidFilterRule      = Error{Code: 40013, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid filter rule")}
	ErrInvalidQuarantineEmail = Error{Code: 40014, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid quarantine email")}
	ErrInvalidEmailAccount    = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid email account")}
	ErrInvalidStats           = Error{Code: 40016, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid email stats")}
	ErrWebhookPayloadTooLarge = Error{Code: 40024, HTTPstatus: http.StatusRequestEntityTooLarge, Err: fmt.Errorf("webhook payload too large")}

	// Plan restrictions (403)
	ErrAccountLimitReached = Error{Code: 40017, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("email account limit reached for the current plan"), Message: "Limite de contas de e-mail atingido para o seu plano"}
	ErrFeatureNotInPlan    = Error{Code: 40018, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("feature not available on the current plan"), Message: "Recurso não disponível no seu plano"}

	// Not found errors (404)
	ErrUserNotFound            = Error{Code: 40019, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("user not found")}
	ErrFilterRuleNotFound      = Error{Code: 40020, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("filter rule not found")}
	ErrQuarantineEmailNotFound = Error{Code: 40021, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("quarantine email not found")}
	ErrEmailAccountNotFound    = Error{Code: 40022, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("email account not found")}
	ErrPlanNotFound            = Error{Code: 40023, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("subscription plan not found")}
	ErrNoBillingCustomer       = Error{Code: 40025, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("user has no billing customer")}
	ErrCheckoutSessionNotFound = Error{Code: 40026, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("checkout session not found")}
	ErrPageNotFound            = Error{Code: 40027, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("page not found")}

	// Conflict errors (409)
	ErrDuplicateConflict  = Error{Code: 40901, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("resource already exists")}
	ErrActiveSubscription = Error{Code: 40902, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("user has a running subscription"), Message: "Cancele sua assinatura antes de excluir a conta"}

	// Rate limiting (429)
	ErrTooManyRequests = Error{Code: 42901, HTTPstatus: http.StatusTooManyRequests, Err: fmt.Errorf("too many requests"), LogLevel: "info"}

	// Server errors (500) - These should be used sparingly and only for true internal errors
	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: failed to process response"), LogLevel: "error"}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: operation failed"), LogLevel: "error"}
	ErrWebhookProcessingFailed    = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: webhook processing failed"), LogLevel: "error"}
	ErrStripeError                = Error{Code: 50201, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("payments provider error"), LogLevel: "error"}
	ErrAuthProviderUnavailable    = Error{Code: 50301, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("auth provider unreachable"), LogLevel: "error"}
	ErrAuthNotConfigured          = Error{Code: 50302, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("auth provider not configured"), LogLevel: "error"}
	ErrBillingNotConfigured       = Error{Code: 50303, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("billing not configured"), LogLevel: "error"}
	ErrAuthTimeout                = Error{Code: 50401, HTTPstatus: http.StatusGatewayTimeout, Err: fmt.Errorf("auth provider timeout"), LogLevel: "error"}
)
