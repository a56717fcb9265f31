package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mailclean/saas-backend/auth"
	"github.com/mailclean/saas-backend/db"
	apierrors "github.com/mailclean/saas-backend/errors"
	"github.com/mailclean/saas-backend/stripe"
	"github.com/mailclean/saas-backend/validator"
)

// writeError writes err if it is an API error, or a generic server error
// wrapping it otherwise.
func writeError(w http.ResponseWriter, err error) {
	var apiErr apierrors.Error
	if errors.As(err, &apiErr) {
		apiErr.Write(w)
		return
	}
	apierrors.ErrGenericInternalServerError.WithErr(err).Write(w)
}

// authError translates the failures of the auth service into API errors
// carrying the localized message.
func authError(err error) apierrors.Error {
	var apiErr apierrors.Error
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		apiErr = apierrors.ErrMissingCredentials
	case errors.Is(err, auth.ErrInvalidCredentials):
		apiErr = apierrors.ErrInvalidCredentials
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		apiErr = apierrors.ErrEmailNotConfirmed
	case errors.Is(err, auth.ErrTooManyRequests):
		apiErr = apierrors.ErrTooManyRequests
	case errors.Is(err, auth.ErrNotConfigured):
		apiErr = apierrors.ErrAuthNotConfigured
	case errors.Is(err, auth.ErrTimeout):
		apiErr = apierrors.ErrAuthTimeout
	case errors.Is(err, auth.ErrConnectivity), errors.Is(err, auth.ErrProvider):
		apiErr = apierrors.ErrAuthProviderUnavailable
	case errors.Is(err, auth.ErrRejected):
		apiErr = apierrors.ErrAuthRequestRejected
	default:
		apiErr = apierrors.ErrGenericInternalServerError
	}
	return apiErr.WithErr(err).WithMessage(err.Error())
}

// stripeError translates the failures of the Stripe service into API errors.
func stripeError(err error) apierrors.Error {
	switch {
	case errors.Is(err, stripe.ErrNotConfigured):
		return apierrors.ErrBillingNotConfigured.WithErr(err)
	case errors.Is(err, stripe.ErrInvalidParams):
		return apierrors.ErrMalformedBody.WithErr(err)
	case errors.Is(err, stripe.ErrCustomerNotFound):
		return apierrors.ErrNoBillingCustomer.WithErr(err)
	case errors.Is(err, stripe.ErrResourceMissing):
		return apierrors.ErrCheckoutSessionNotFound.WithErr(err)
	default:
		return apierrors.ErrStripeError.WithErr(err)
	}
}

// dbError translates the storage failures into API errors. notFound is the
// error written when the record does not exist and invalid the one written
// when the record is rejected.
func dbError(err error, notFound, invalid apierrors.Error) apierrors.Error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return notFound.WithErr(err)
	case errors.Is(err, db.ErrInvalidData):
		return invalid.WithErr(err)
	case errors.Is(err, db.ErrAlreadyExists):
		return apierrors.ErrDuplicateConflict.WithErr(err)
	default:
		return apierrors.ErrGenericInternalServerError.WithErr(err)
	}
}

// decodeBody decodes the JSON body of the request into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierrors.ErrMalformedBody.WithErr(err)
	}
	return nil
}

// decodeValid decodes the JSON body of the request into v and checks its
// validate rules. Rule violations are returned as the invalid error with the
// failing fields as data.
func (a *API) decodeValid(r *http.Request, v any, invalid apierrors.Error) error {
	if err := decodeBody(r, v); err != nil {
		return err
	}
	if err := a.validator.Validate(v); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			return invalid.WithErr(err).WithData(fields)
		}
		return invalid.WithErr(err)
	}
	return nil
}

// origin returns the public origin of the web app for the redirect URLs.
// The configured URL wins over the request host.
func (a *API) origin(r *http.Request) string {
	if a.webAppURL != "" {
		return strings.TrimRight(a.webAppURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
