package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/notifications/mailtemplates"
	"github.com/mailclean/saas-backend/subscriptions"
	stripeapi "github.com/stripe/stripe-go/v82"
	"go.vocdoni.io/dvote/log"
)

// eventRefs are the references an event carries to find its user, in
// priority order.
type eventRefs struct {
	UserID         string
	SubscriptionID string
	CustomerID     string
	Email          string
}

// findUser returns the user the references point to. It returns
// ErrUnmatchedEventUser when none of them matches, and any other database
// error as is.
func (s *Service) findUser(ctx context.Context, refs eventRefs) (*db.User, error) {
	lookups := []struct {
		value string
		fn    func(context.Context, string) (*db.User, error)
	}{
		{refs.UserID, s.db.User},
		{refs.SubscriptionID, s.db.UserByStripeSubscription},
		{refs.CustomerID, s.db.UserByStripeCustomer},
		{refs.Email, s.db.UserByEmail},
	}
	for _, lookup := range lookups {
		if lookup.value == "" {
			continue
		}
		user, err := lookup.fn(ctx, lookup.value)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %+v", ErrUnmatchedEventUser, refs)
}

// planFromMetadata reads the plan the checkout was created for. Each
// checkout flow names the key differently.
func planFromMetadata(metadata map[string]string) db.PlanID {
	for _, key := range []string{"plan", "planId", "planType"} {
		if p := db.PlanID(metadata[key]); p.Valid() {
			return p
		}
	}
	return ""
}

// pricePlan returns the plan paid by the first known price. When there are
// prices but none is known no plan is returned, the metadata is only used
// without prices.
func (s *Service) pricePlan(prices []*stripeapi.Price, metadata map[string]string, object string) db.PlanID {
	metaPlan := planFromMetadata(metadata)
	if len(prices) == 0 {
		return metaPlan
	}
	for _, price := range prices {
		plan, ok := s.plans.PlanForPrice(price.ID, price.UnitAmount, string(price.Currency))
		if !ok {
			continue
		}
		if metaPlan != "" && metaPlan != plan.ID {
			log.Warnw("stripe webhook: metadata plan does not match the price", "object", object,
				"metadata", metaPlan, "price", price.ID, "plan", plan.ID)
		}
		return plan.ID
	}
	log.Warnw("stripe webhook: no known price, plan kept", "object", object, "metadata", metaPlan)
	return ""
}

// subscriptionPlan resolves the plan of a subscription from its prices.
func (s *Service) subscriptionPlan(sub *stripeapi.Subscription) db.PlanID {
	var prices []*stripeapi.Price
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price != nil {
				prices = append(prices, item.Price)
			}
		}
	}
	return s.pricePlan(prices, sub.Metadata, sub.ID)
}

// checkoutPlan resolves the plan bought in the session from its prices. The
// events do not carry the line items unless expanded, they are read from the
// API when missing.
func (s *Service) checkoutPlan(ctx context.Context, session *stripeapi.CheckoutSession) (db.PlanID, error) {
	var items []*stripeapi.LineItem
	if session.LineItems != nil {
		items = session.LineItems.Data
	}
	if len(items) == 0 && s.client.Enabled() {
		var err error
		if items, err = s.client.CheckoutLineItems(ctx, session.ID); err != nil {
			return "", fmt.Errorf("failed to read the prices of checkout %s: %w", session.ID, err)
		}
	}
	var prices []*stripeapi.Price
	for _, item := range items {
		if item.Price != nil {
			prices = append(prices, item.Price)
		}
	}
	return s.pricePlan(prices, session.Metadata, session.ID), nil
}

func customerID(c *stripeapi.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripeapi.Event) error {
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return NewStripeError(CodeInvalidEvent, "failed to parse checkout session from event", err)
	}
	refs := eventRefs{
		UserID:     session.ClientReferenceID,
		CustomerID: customerID(session.Customer),
		Email:      session.CustomerEmail,
	}
	if refs.UserID == "" {
		refs.UserID = session.Metadata["userId"]
	}
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		refs.Email = session.CustomerDetails.Email
	}
	sub := db.UserSubscription{StripeCustomerID: refs.CustomerID}
	if session.Subscription != nil {
		sub.StripeSubscriptionID = session.Subscription.ID
		sub.Status = string(session.Subscription.Status)
	}

	user, err := s.findUser(ctx, refs)
	if err != nil {
		return err
	}
	plan, err := s.checkoutPlan(ctx, &session)
	if err != nil {
		return err
	}
	unlock := s.lockManager.LockUser(user.ID)
	defer unlock()

	updated, err := s.db.SetUserSubscription(ctx, user.ID, plan, sub)
	if err != nil {
		return fmt.Errorf("failed to save checkout %s for user %s: %w", session.ID, user.ID, err)
	}
	log.Infow("stripe webhook: checkout completed", "session", session.ID, "user", user.ID, "plan", updated.Plan)
	s.notify(ctx, updated, mailtemplates.PaymentConfirmedNotification, s.plans.UserPlan(updated))
	return nil
}

// handleSubscriptionChange keeps the plan of the user in sync with the status
// of the subscription. Statuses in between, like past_due, keep the plan.
func (s *Service) handleSubscriptionChange(ctx context.Context, event *stripeapi.Event) error {
	subscription, err := parseSubscription(event)
	if err != nil {
		return err
	}
	user, err := s.findUser(ctx, subscriptionRefs(subscription))
	if err != nil {
		return err
	}
	unlock := s.lockManager.LockUser(user.ID)
	defer unlock()

	var plan db.PlanID
	switch subscription.Status {
	case stripeapi.SubscriptionStatusActive, stripeapi.SubscriptionStatusTrialing:
		plan = s.subscriptionPlan(subscription)
	case stripeapi.SubscriptionStatusCanceled,
		stripeapi.SubscriptionStatusUnpaid,
		stripeapi.SubscriptionStatusIncompleteExpired:
		plan = db.PlanFree
	}
	if _, err := s.db.SetUserSubscription(ctx, user.ID, plan, subscriptionState(subscription)); err != nil {
		return fmt.Errorf("failed to save subscription %s (status=%s) for user %s: %w",
			subscription.ID, subscription.Status, user.ID, err)
	}
	log.Infow("stripe webhook: subscription saved", "subscription", subscription.ID,
		"status", subscription.Status, "user", user.ID, "plan", plan)
	return nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *stripeapi.Event) error {
	subscription, err := parseSubscription(event)
	if err != nil {
		return err
	}
	user, err := s.findUser(ctx, subscriptionRefs(subscription))
	if err != nil {
		return err
	}
	unlock := s.lockManager.LockUser(user.ID)
	defer unlock()

	previous := s.plans.UserPlan(user)
	state := subscriptionState(subscription)
	state.Status = string(stripeapi.SubscriptionStatusCanceled)
	updated, err := s.db.SetUserSubscription(ctx, user.ID, db.PlanFree, state)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription %s for user %s: %w", subscription.ID, user.ID, err)
	}
	log.Infow("stripe webhook: subscription canceled, switched to free plan",
		"subscription", subscription.ID, "user", user.ID)
	if previous.Paid() {
		s.notify(ctx, updated, mailtemplates.SubscriptionCanceledNotification, previous)
	}
	return nil
}

func (s *Service) handleInvoicePayment(ctx context.Context, event *stripeapi.Event, succeeded bool) error {
	var invoice stripeapi.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return NewStripeError(CodeInvalidEvent, "failed to parse invoice from event", err)
	}
	refs := eventRefs{CustomerID: customerID(invoice.Customer), Email: invoice.CustomerEmail}
	if invoice.Parent != nil && invoice.Parent.SubscriptionDetails != nil {
		details := invoice.Parent.SubscriptionDetails
		refs.UserID = details.Metadata["userId"]
		if details.Subscription != nil {
			refs.SubscriptionID = details.Subscription.ID
		}
	}
	user, err := s.findUser(ctx, refs)
	if err != nil {
		return err
	}
	unlock := s.lockManager.LockUser(user.ID)
	defer unlock()

	state := db.UserSubscription{StripeCustomerID: refs.CustomerID}
	if succeeded {
		state.LastPaymentDate = invoicePaymentTime(&invoice)
	} else {
		state.LastPaymentFailedAt = time.Unix(invoice.Created, 0)
		if invoice.Created == 0 {
			state.LastPaymentFailedAt = time.Now()
		}
	}
	updated, err := s.db.SetUserSubscription(ctx, user.ID, "", state)
	if err != nil {
		return fmt.Errorf("failed to save payment %s for user %s: %w", invoice.ID, user.ID, err)
	}
	log.Infow("stripe webhook: invoice payment processed", "invoice", invoice.ID,
		"user", user.ID, "succeeded", succeeded)
	if !succeeded {
		s.notify(ctx, updated, mailtemplates.PaymentFailedNotification, s.plans.UserPlan(updated))
	}
	return nil
}

func invoicePaymentTime(invoice *stripeapi.Invoice) time.Time {
	switch {
	case invoice.StatusTransitions != nil && invoice.StatusTransitions.PaidAt > 0:
		return time.Unix(invoice.StatusTransitions.PaidAt, 0)
	case invoice.EffectiveAt > 0:
		return time.Unix(invoice.EffectiveAt, 0)
	case invoice.Created > 0:
		return time.Unix(invoice.Created, 0)
	default:
		return time.Now()
	}
}

func parseSubscription(event *stripeapi.Event) (*stripeapi.Subscription, error) {
	var subscription stripeapi.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return nil, NewStripeError(CodeInvalidEvent, "failed to parse subscription from event", err)
	}
	return &subscription, nil
}

func subscriptionRefs(subscription *stripeapi.Subscription) eventRefs {
	refs := eventRefs{
		UserID:         subscription.Metadata["userId"],
		SubscriptionID: subscription.ID,
		CustomerID:     customerID(subscription.Customer),
	}
	if subscription.Customer != nil {
		refs.Email = subscription.Customer.Email
	}
	return refs
}

func subscriptionState(subscription *stripeapi.Subscription) db.UserSubscription {
	state := db.UserSubscription{
		StripeCustomerID:     customerID(subscription.Customer),
		StripeSubscriptionID: subscription.ID,
		Status:               string(subscription.Status),
	}
	if subscription.Items != nil && len(subscription.Items.Data) > 0 && subscription.Items.Data[0].CurrentPeriodEnd > 0 {
		state.RenewalDate = time.Unix(subscription.Items.Data[0].CurrentPeriodEnd, 0)
	}
	return state
}

type billingMailData struct {
	Name        string
	PlanName    string
	RenewalDate string
	Link        string
}

// notify sends the billing e-mail to the user. Delivery failures are only
// logged, the event is processed anyway.
func (s *Service) notify(ctx context.Context, user *db.User, tmpl mailtemplates.MailTemplate, plan *subscriptions.Plan) {
	if s.mail == nil || user == nil {
		return
	}
	data := billingMailData{
		Name:     user.Name,
		PlanName: plan.Name,
		Link:     s.webAppURL + tmpl.WebAppURI,
	}
	if data.Name == "" {
		data.Name = user.Email
	}
	if !user.Subscription.RenewalDate.IsZero() {
		data.RenewalDate = user.Subscription.RenewalDate.Format("02/01/2006")
	}
	n, err := tmpl.ExecTemplate(data)
	if err != nil {
		log.Warnw("stripe webhook: could not render notification", "template", tmpl.File, "error", err)
		return
	}
	n.ToName = user.Name
	n.ToAddress = user.Email
	if err := s.mail.SendNotification(ctx, n); err != nil {
		log.Warnw("stripe webhook: could not send notification", "template", tmpl.File, "user", user.ID, "error", err)
	}
}
