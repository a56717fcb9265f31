package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/mailclean/saas-backend/api/apicommon"
	apierrors "github.com/mailclean/saas-backend/errors"
	"github.com/mailclean/saas-backend/internal"
	"github.com/mailclean/saas-backend/metrics"
	"github.com/mailclean/saas-backend/stripe"
	"go.vocdoni.io/dvote/log"
)

// trialDays of the checkouts created from a Stripe price.
const trialDays = 7

// bindUser attaches the authenticated user, if any, to the checkout so the
// webhook events can find it.
func bindUser(r *http.Request, params *stripe.CheckoutSessionParams) {
	if user, ok := apicommon.UserFromContext(r.Context()); ok {
		params.UserID = user.ID
		params.CustomerID = user.Subscription.StripeCustomerID
		params.CustomerEmail = user.Email
	}
}

func (a *API) billingAvailable(w http.ResponseWriter) bool {
	if a.stripe == nil {
		apierrors.ErrBillingNotConfigured.Write(w)
		return false
	}
	return true
}

// planCheckoutHandler creates a checkout for a catalog plan with its inline
// BRL monthly price and returns the hosted checkout URL.
func (a *API) planCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	req := &apicommon.PlanCheckoutRequest{}
	if err := decodeBody(r, req); err != nil {
		writeError(w, err)
		return
	}
	plan, ok := a.subscriptions.PaidPlan(req.Plan)
	if !ok {
		metrics.RecordCheckoutSession(req.Plan, "invalid")
		apierrors.ErrInvalidPlan.Withf("unknown plan %q", req.Plan).Write(w)
		return
	}
	if !a.billingAvailable(w) {
		return
	}
	origin := a.origin(r)
	params := &stripe.CheckoutSessionParams{
		UnitAmount:         plan.PriceCents,
		Currency:           plan.Currency,
		ProductName:        plan.ProductName,
		ProductDescription: plan.Description,
		SuccessURL:         origin + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:          origin + "/?canceled=true",
		Metadata:           map[string]string{"plan": string(plan.ID)},
	}
	bindUser(r, params)
	session, err := a.stripe.CreateCheckoutSession(r.Context(), params)
	if err != nil {
		metrics.RecordCheckoutSession(string(plan.ID), "failed")
		stripeError(err).Write(w)
		return
	}
	metrics.RecordCheckoutSession(string(plan.ID), "created")
	apicommon.HTTPWriteJSON(w, &apicommon.PlanCheckoutResponse{URL: session.URL})
}

// priceCheckoutHandler creates a checkout with a trial for a Stripe price
// and returns the session id. A known price decides the plan, the planId of
// the request may only repeat it.
func (a *API) priceCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	req := &apicommon.PriceCheckoutRequest{}
	if err := decodeBody(r, req); err != nil {
		writeError(w, err)
		return
	}
	if req.PriceID == "" {
		metrics.RecordCheckoutSession(req.PlanID, "invalid")
		apierrors.ErrMissingPriceID.Write(w)
		return
	}
	plan, err := a.subscriptions.CheckoutPlan(req.PriceID, req.PlanID)
	if err != nil {
		metrics.RecordCheckoutSession(req.PlanID, "invalid")
		writeError(w, err)
		return
	}
	if !a.billingAvailable(w) {
		return
	}
	origin := a.origin(r)
	params := &stripe.CheckoutSessionParams{
		PriceID:    req.PriceID,
		TrialDays:  trialDays,
		SuccessURL: origin + "/dashboard?success=true&plan=" + url.QueryEscape(string(plan.ID)),
		CancelURL:  origin + "/dashboard?canceled=true",
		Metadata:   map[string]string{"planId": string(plan.ID)},
	}
	bindUser(r, params)
	session, err := a.stripe.CreateCheckoutSession(r.Context(), params)
	if err != nil {
		metrics.RecordCheckoutSession(string(plan.ID), "failed")
		stripeError(err).Write(w)
		return
	}
	metrics.RecordCheckoutSession(string(plan.ID), "created")
	apicommon.HTTPWriteJSON(w, &apicommon.PriceCheckoutResponse{SessionID: session.ID})
}

// customerCheckoutHandler creates or retrieves the Stripe customer of the
// email and creates the plan checkout attached to it.
func (a *API) customerCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	req := &apicommon.CustomerCheckoutRequest{}
	if err := decodeBody(r, req); err != nil {
		writeError(w, err)
		return
	}
	email := internal.NormalizeEmail(req.UserEmail)
	if req.PlanType == "" || email == "" {
		metrics.RecordCheckoutSession(req.PlanType, "invalid")
		apierrors.ErrMissingCheckoutFields.Write(w)
		return
	}
	plan, ok := a.subscriptions.PaidPlan(req.PlanType)
	if !ok {
		metrics.RecordCheckoutSession(req.PlanType, "invalid")
		apierrors.ErrInvalidPlan.Withf("unknown plan %q", req.PlanType).Write(w)
		return
	}
	if !a.billingAvailable(w) {
		return
	}
	userID := req.UserID
	if user, ok := apicommon.UserFromContext(r.Context()); ok {
		userID = user.ID
	}
	origin := a.origin(r)
	params := &stripe.CheckoutSessionParams{
		PriceID:            plan.PriceID,
		UnitAmount:         plan.PriceCents,
		Currency:           plan.Currency,
		ProductName:        plan.ProductName,
		ProductDescription: plan.Description,
		SuccessURL:         origin + "/dashboard?success=true&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:          origin + "/planos?canceled=true",
		UserID:             userID,
		Metadata:           map[string]string{"planType": string(plan.ID)},
	}
	session, err := a.stripe.CreateCustomerCheckoutSession(r.Context(), email, userID, params)
	if err != nil {
		metrics.RecordCheckoutSession(string(plan.ID), "failed")
		stripeError(err).Write(w)
		return
	}
	metrics.RecordCheckoutSession(string(plan.ID), "created")
	apicommon.HTTPWriteJSON(w, &apicommon.CustomerCheckoutResponse{SessionID: session.ID, URL: session.URL})
}

// checkoutSessionHandler returns the status of a checkout session, used by
// the success page.
func (a *API) checkoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		apierrors.ErrMalformedURLParam.Withf("sessionID is required").Write(w)
		return
	}
	if !a.billingAvailable(w) {
		return
	}
	status, err := a.stripe.GetCheckoutSession(r.Context(), sessionID)
	if err != nil {
		stripeError(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, status)
}

// portalSessionHandler returns the billing portal URL of the current user.
func (a *API) portalSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		apierrors.ErrUnauthorized.Write(w)
		return
	}
	if !a.billingAvailable(w) {
		return
	}
	session, err := a.stripe.CreatePortalSession(r.Context(), user, a.origin(r)+"/dashboard")
	if err != nil {
		stripeError(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.PortalResponse{URL: session.URL})
}

// webhookHandler receives the Stripe events. Invalid signatures answer 400.
// Processing failures answer 500 so Stripe delivers the event again.
func (a *API) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if !a.billingAvailable(w) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, apicommon.MaxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.ErrWebhookPayloadTooLarge.WithErr(err).Write(w)
			return
		}
		apierrors.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		metrics.RecordWebhookEvent("", "invalid")
		apierrors.ErrMissingSignature.Write(w)
		return
	}
	event, err := a.stripe.HandleWebhookEvent(r.Context(), payload, signature)
	switch {
	case err == nil:
	case errors.Is(err, stripe.ErrWebhookValidation):
		apierrors.ErrInvalidSignature.WithErr(err).Write(w)
		return
	case errors.Is(err, stripe.ErrNotConfigured):
		apierrors.ErrBillingNotConfigured.WithErr(err).Write(w)
		return
	default:
		apierrors.ErrWebhookProcessingFailed.WithErr(err).Write(w)
		return
	}
	log.Debugw("stripe webhook: event handled", "event", event.ID, "type", event.Type)
	apicommon.HTTPWriteJSON(w, &apicommon.WebhookResponse{Received: true})
}
