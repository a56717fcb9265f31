// Package stripe provides integration with the Stripe payment service:
// checkout and billing portal sessions, and the webhook events that keep the
// plan of the users in sync with their subscriptions.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/metrics"
	"github.com/mailclean/saas-backend/notifications"
	"github.com/mailclean/saas-backend/subscriptions"
	stripeapi "github.com/stripe/stripe-go/v82"
	"go.vocdoni.io/dvote/log"
)

// Repository defines the database methods required by the webhook handlers.
type Repository interface {
	User(ctx context.Context, id string) (*db.User, error)
	UserByEmail(ctx context.Context, email string) (*db.User, error)
	UserByStripeCustomer(ctx context.Context, customerID string) (*db.User, error)
	UserByStripeSubscription(ctx context.Context, subscriptionID string) (*db.User, error)
	SetUserSubscription(ctx context.Context, id string, plan db.PlanID, sub db.UserSubscription) (*db.User, error)
}

// ServiceConfig holds the dependencies of the Service. Events defaults to an
// in-memory store owned by the Service, Mail is optional and
// LockCleanupInterval defaults to DefaultLockCleanupInterval.
type ServiceConfig struct {
	Client              *Client
	DB                  Repository
	Subscriptions       *subscriptions.Subscriptions
	Events              EventStore
	Mail                notifications.NotificationService
	WebAppURL           string
	LockCleanupInterval time.Duration
}

// Service provides the main business logic for Stripe operations
type Service struct {
	client      *Client
	db          Repository
	plans       *subscriptions.Subscriptions
	events      EventStore
	mail        notifications.NotificationService
	webAppURL   string
	lockManager *LockManager
	ownEvents   *MemoryEventStore
	stop        chan struct{}
	closeOnce   sync.Once
}

// NewService creates a new Stripe service. It starts the periodic cleanup of
// the user locks, Close stops it.
func NewService(conf *ServiceConfig) (*Service, error) {
	if conf == nil || conf.Client == nil {
		return nil, fmt.Errorf("stripe client is required")
	}
	if conf.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &Service{
		client:      conf.Client,
		db:          conf.DB,
		plans:       conf.Subscriptions,
		events:      conf.Events,
		mail:        conf.Mail,
		webAppURL:   conf.WebAppURL,
		lockManager: NewLockManager(),
		stop:        make(chan struct{}),
	}
	if s.plans == nil {
		s.plans = subscriptions.New(nil)
	}
	if s.events == nil {
		s.ownEvents = NewMemoryEventStore(DefaultEventTTL)
		s.events = s.ownEvents
	}
	interval := conf.LockCleanupInterval
	if interval <= 0 {
		interval = DefaultLockCleanupInterval
	}
	go s.lockManager.runCleanup(interval, s.stop)
	return s, nil
}

// Close stops the background cleanups of the service. The event store given
// in the config is left to its owner.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.ownEvents != nil {
			s.ownEvents.Close()
		}
	})
}

// Client returns the Stripe API client of the service.
func (s *Service) Client() *Client {
	return s.client
}

// HandleWebhookEvent validates the signed payload and processes the event
// once. Signature failures wrap ErrWebhookValidation and leave no trace.
// Processing failures wrap ErrProcessingFailed and the event is not marked,
// so the redelivery can process it again.
func (s *Service) HandleWebhookEvent(ctx context.Context, payload []byte, signatureHeader string) (*stripeapi.Event, error) {
	event, err := s.client.ValidateWebhookEvent(payload, signatureHeader)
	if err != nil {
		metrics.RecordWebhookEvent("", "invalid")
		return nil, err
	}
	eventType := string(event.Type)

	processed, err := s.events.Processed(ctx, event.ID)
	if err != nil {
		log.Warnw("stripe webhook: failed to check processed event", "event", event.ID, "error", err)
	} else if processed {
		log.Debugf("stripe webhook: event %s already processed, skipping", event.ID)
		metrics.RecordWebhookEvent(eventType, "duplicate")
		return event, nil
	}

	if err := s.HandleEvent(ctx, event); err != nil {
		if errors.Is(err, ErrUnmatchedEventUser) {
			log.Warnw("stripe webhook: event without matching user", "event", event.ID, "type", eventType, "error", err)
			metrics.RecordWebhookEvent(eventType, "unmatched")
		} else {
			metrics.RecordWebhookEvent(eventType, "failed")
			return event, &StripeError{Code: CodeProcessingFailed, Message: "failed to process " + eventType, Err: err}
		}
	} else {
		metrics.RecordWebhookEvent(eventType, "processed")
	}

	if err := s.events.MarkProcessed(ctx, event.ID, eventType); err != nil {
		log.Warnw("stripe webhook: failed to mark event as processed", "event", event.ID, "error", err)
	}
	return event, nil
}

// HandleEvent dispatches the event to its handler. Unknown types are logged
// and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripeapi.Event) error {
	switch event.Type {
	case stripeapi.EventTypeCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case stripeapi.EventTypeCustomerSubscriptionCreated,
		stripeapi.EventTypeCustomerSubscriptionUpdated:
		return s.handleSubscriptionChange(ctx, event)
	case stripeapi.EventTypeCustomerSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case stripeapi.EventTypeInvoicePaymentSucceeded:
		return s.handleInvoicePayment(ctx, event, true)
	case stripeapi.EventTypeInvoicePaymentFailed:
		return s.handleInvoicePayment(ctx, event, false)
	default:
		log.Debugf("stripe webhook: received unhandled event type %s (id %s)", event.Type, event.ID)
		return nil
	}
}

// CreateCheckoutSession creates a new checkout session
func (s *Service) CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	return s.client.CreateCheckoutSession(ctx, params)
}

// CreateCustomerCheckoutSession creates or retrieves the Stripe customer of
// the email and creates the checkout session attached to it.
func (s *Service) CreateCustomerCheckoutSession(ctx context.Context, email, userID string,
	params *CheckoutSessionParams,
) (*stripeapi.CheckoutSession, error) {
	customer, err := s.client.CreateOrRetrieveCustomer(ctx, email, userID)
	if err != nil {
		return nil, err
	}
	params.CustomerID = customer.ID
	params.CustomerEmail = ""
	return s.client.CreateCheckoutSession(ctx, params)
}

// GetCheckoutSession retrieves a checkout session status
func (s *Service) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionStatus, error) {
	return s.client.GetCheckoutSession(ctx, sessionID)
}

// CreatePortalSession creates a billing portal session for the customer of
// the user. It fails with ErrCustomerNotFound if the user never checked out.
func (s *Service) CreatePortalSession(ctx context.Context, user *db.User, returnURL string) (*stripeapi.BillingPortalSession, error) {
	customerID := user.Subscription.StripeCustomerID
	if customerID == "" {
		customer, err := s.client.CustomerByEmail(ctx, user.Email)
		if err != nil {
			return nil, err
		}
		customerID = customer.ID
	}
	return s.client.CreatePortalSession(ctx, customerID, returnURL)
}
