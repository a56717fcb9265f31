package stripe

import (
	"context"
	"errors"

	"github.com/sethvargo/go-retry"
	stripeapi "github.com/stripe/stripe-go/v82"
	stripeportalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	stripecheckoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	stripecustomer "github.com/stripe/stripe-go/v82/customer"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

// Client wraps the Stripe API client with additional functionality
type Client struct {
	config *Config
}

// NewClient creates a new Stripe client with the given configuration
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	stripeapi.Key = config.APIKey
	return &Client{config: config.withDefaults()}
}

// Enabled reports if the API key is set.
func (c *Client) Enabled() bool {
	return c.config.Enabled()
}

// WebhookEnabled reports if the webhook secret is set.
func (c *Client) WebhookEnabled() bool {
	return c.config.WebhookSecret != ""
}

// ValidateWebhookEvent checks the signature of the payload against the
// webhook secret and parses the event.
func (c *Client) ValidateWebhookEvent(payload []byte, signatureHeader string) (*stripeapi.Event, error) {
	if c.config.WebhookSecret == "" {
		return nil, NewStripeError(CodeNotConfigured, "webhook secret not configured", nil)
	}
	event, err := stripewebhook.ConstructEventWithOptions(payload, signatureHeader, c.config.WebhookSecret,
		stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, NewStripeError(CodeWebhookValidation, "webhook signature validation failed", err)
	}
	return &event, nil
}

// withRetry runs fn again while it fails with a temporary Stripe error. Only
// idempotent calls go through it.
func (c *Client) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(c.config.MaxRetries, retry.NewExponential(c.config.RetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if IsRetryableError(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// CustomerByEmail returns the first Stripe customer with the email.
func (c *Client) CustomerByEmail(ctx context.Context, email string) (*stripeapi.Customer, error) {
	if !c.config.Enabled() {
		return nil, ErrNotConfigured
	}
	var found *stripeapi.Customer
	err := c.withRetry(ctx, func(ctx context.Context) error {
		params := &stripeapi.CustomerListParams{Email: stripeapi.String(email)}
		params.Context = ctx
		params.Limit = stripeapi.Int64(1)
		customers := stripecustomer.List(params)
		if customers.Next() {
			found = customers.Customer()
			return nil
		}
		if err := customers.Err(); err != nil {
			return apiError("failed to list customers", err)
		}
		return NewStripeError(CodeCustomerNotFound, "customer with email "+email+" not found", nil)
	})
	return found, err
}

// CreateOrRetrieveCustomer returns the customer registered with the email,
// creating it if needed. The user id is stored in the customer metadata.
func (c *Client) CreateOrRetrieveCustomer(ctx context.Context, email, userID string) (*stripeapi.Customer, error) {
	customer, err := c.CustomerByEmail(ctx, email)
	switch {
	case err == nil:
		if userID == "" || customer.Metadata["userId"] == userID {
			return customer, nil
		}
		params := &stripeapi.CustomerParams{Metadata: map[string]string{"userId": userID}}
		params.Context = ctx
		updated, err := stripecustomer.Update(customer.ID, params)
		if err != nil {
			return nil, apiError("failed to update customer metadata", err)
		}
		return updated, nil
	case !errors.Is(err, ErrCustomerNotFound):
		return nil, err
	}
	params := &stripeapi.CustomerParams{Email: stripeapi.String(email)}
	params.Context = ctx
	if userID != "" {
		params.Metadata = map[string]string{"userId": userID}
	}
	customer, err = stripecustomer.New(params)
	if err != nil {
		return nil, apiError("failed to create customer", err)
	}
	return customer, nil
}

// CheckoutLineItems returns the line items of a checkout session with their
// prices.
func (c *Client) CheckoutLineItems(ctx context.Context, sessionID string) ([]*stripeapi.LineItem, error) {
	if !c.config.Enabled() {
		return nil, ErrNotConfigured
	}
	var items []*stripeapi.LineItem
	err := c.withRetry(ctx, func(ctx context.Context) error {
		items = nil
		params := &stripeapi.CheckoutSessionListLineItemsParams{Session: stripeapi.String(sessionID)}
		params.Context = ctx
		iter := stripecheckoutsession.ListLineItems(params)
		for iter.Next() {
			items = append(items, iter.LineItem())
		}
		if err := iter.Err(); err != nil {
			return apiError("failed to list checkout line items", err)
		}
		return nil
	})
	return items, err
}

// CreateCheckoutSession creates a hosted subscription checkout session. It is
// not retried, a repeated call would create a second session.
// API description https://docs.stripe.com/api/checkout/sessions
func (c *Client) CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	if !c.config.Enabled() {
		return nil, ErrNotConfigured
	}
	checkoutParams, err := NewCheckoutSessionParams(params)
	if err != nil {
		return nil, err
	}
	checkoutParams.Context = ctx
	session, err := stripecheckoutsession.New(checkoutParams)
	if err != nil {
		return nil, apiError("failed to create checkout session", err)
	}
	return session, nil
}

// GetCheckoutSession retrieves a checkout session by ID
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionStatus, error) {
	if !c.config.Enabled() {
		return nil, ErrNotConfigured
	}
	var session *stripeapi.CheckoutSession
	err := c.withRetry(ctx, func(ctx context.Context) error {
		params := &stripeapi.CheckoutSessionParams{}
		params.Context = ctx
		params.AddExpand("subscription")
		var err error
		if session, err = stripecheckoutsession.Get(sessionID, params); err != nil {
			return apiError("failed to get checkout session", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessionStatus(session), nil
}

// CreatePortalSession creates a billing portal session for the customer.
// The user comes back to returnURL when leaving the portal.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripeapi.BillingPortalSession, error) {
	if !c.config.Enabled() {
		return nil, ErrNotConfigured
	}
	params := &stripeapi.BillingPortalSessionParams{Customer: stripeapi.String(customerID)}
	params.Context = ctx
	if returnURL != "" {
		params.ReturnURL = stripeapi.String(returnURL)
	}
	session, err := stripeportalsession.New(params)
	if err != nil {
		return nil, apiError("failed to create portal session", err)
	}
	return session, nil
}
