package stripe

import (
	stripeapi "github.com/stripe/stripe-go/v82"
)

// DefaultLocale is the language of the hosted checkout pages.
const DefaultLocale = "pt-BR"

// CheckoutSessionParams holds parameters for creating a checkout session.
// When PriceID is empty the line item is built inline from UnitAmount,
// Currency and ProductName as a monthly recurring price.
type CheckoutSessionParams struct {
	PriceID            string
	UnitAmount         int64
	Currency           string
	ProductName        string
	ProductDescription string
	TrialDays          int64
	SuccessURL         string
	CancelURL          string
	CustomerID         string
	CustomerEmail      string
	UserID             string
	Metadata           map[string]string
	Locale             string
}

// CheckoutSessionStatus represents the status of a checkout session
type CheckoutSessionStatus struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	PaymentStatus      string            `json:"paymentStatus"`
	CustomerEmail      string            `json:"customerEmail,omitempty"`
	SubscriptionStatus string            `json:"subscriptionStatus,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// NewCheckoutSessionParams validates the parameters and translates them into
// the Stripe API request. The user id, when present, is set as the client
// reference and in the metadata of both the session and the subscription.
func NewCheckoutSessionParams(params *CheckoutSessionParams) (*stripeapi.CheckoutSessionParams, error) {
	if params == nil {
		return nil, ErrInvalidParams
	}
	if params.SuccessURL == "" || params.CancelURL == "" {
		return nil, NewStripeError(CodeInvalidParams, "success and cancel URLs are required", nil)
	}
	lineItem := &stripeapi.CheckoutSessionLineItemParams{Quantity: stripeapi.Int64(1)}
	switch {
	case params.PriceID != "":
		lineItem.Price = stripeapi.String(params.PriceID)
	case params.UnitAmount > 0 && params.Currency != "" && params.ProductName != "":
		productData := &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripeapi.String(params.ProductName),
		}
		if params.ProductDescription != "" {
			productData.Description = stripeapi.String(params.ProductDescription)
		}
		lineItem.PriceData = &stripeapi.CheckoutSessionLineItemPriceDataParams{
			Currency:    stripeapi.String(params.Currency),
			ProductData: productData,
			UnitAmount:  stripeapi.Int64(params.UnitAmount),
			Recurring: &stripeapi.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripeapi.String(string(stripeapi.PriceRecurringIntervalMonth)),
			},
		}
	default:
		return nil, NewStripeError(CodeInvalidParams, "a price id or an inline price is required", nil)
	}

	metadata := map[string]string{}
	for k, v := range params.Metadata {
		metadata[k] = v
	}
	if params.UserID != "" {
		metadata["userId"] = params.UserID
	}
	locale := params.Locale
	if locale == "" {
		locale = DefaultLocale
	}

	checkoutParams := &stripeapi.CheckoutSessionParams{
		Mode:                stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription)),
		PaymentMethodTypes:  stripeapi.StringSlice([]string{"card"}),
		LineItems:           []*stripeapi.CheckoutSessionLineItemParams{lineItem},
		SuccessURL:          stripeapi.String(params.SuccessURL),
		CancelURL:           stripeapi.String(params.CancelURL),
		AllowPromotionCodes: stripeapi.Bool(true),
		Locale:              stripeapi.String(locale),
		Metadata:            metadata,
		SubscriptionData: &stripeapi.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	if params.TrialDays > 0 {
		checkoutParams.SubscriptionData.TrialPeriodDays = stripeapi.Int64(params.TrialDays)
	}
	if params.UserID != "" {
		checkoutParams.ClientReferenceID = stripeapi.String(params.UserID)
	}
	// a known customer keeps its payment methods, otherwise Stripe creates
	// one from the email
	if params.CustomerID != "" {
		checkoutParams.Customer = stripeapi.String(params.CustomerID)
	} else if params.CustomerEmail != "" {
		checkoutParams.CustomerEmail = stripeapi.String(params.CustomerEmail)
	}
	return checkoutParams, nil
}

func sessionStatus(session *stripeapi.CheckoutSession) *CheckoutSessionStatus {
	status := &CheckoutSessionStatus{
		ID:            session.ID,
		Status:        string(session.Status),
		PaymentStatus: string(session.PaymentStatus),
		CustomerEmail: session.CustomerEmail,
		Metadata:      session.Metadata,
	}
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		status.CustomerEmail = session.CustomerDetails.Email
	}
	if session.Subscription != nil {
		status.SubscriptionStatus = string(session.Subscription.Status)
	}
	return status
}
