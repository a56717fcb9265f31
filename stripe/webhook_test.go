package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/notifications"
	"github.com/mailclean/saas-backend/subscriptions"
	stripeapi "github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

type mailRecorder struct {
	mu   sync.Mutex
	sent []*notifications.Notification
}

func (*mailRecorder) New(any) error { return nil }

func (m *mailRecorder) SendNotification(_ context.Context, n *notifications.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *mailRecorder) last() *notifications.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

func (m *mailRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// failingRepo fails every write.
type failingRepo struct {
	*db.MongoStorage
}

func (failingRepo) SetUserSubscription(context.Context, string, db.PlanID, db.UserSubscription) (*db.User, error) {
	return nil, fmt.Errorf("connection reset")
}

func newTestService(c *qt.C, repo Repository) (*Service, *mailRecorder) {
	mail := &mailRecorder{}
	events := NewMemoryEventStore(time.Hour)
	c.Cleanup(events.Close)
	s, err := NewService(&ServiceConfig{
		Client: NewClient(&Config{WebhookSecret: testWebhookSecret}),
		DB:     repo,
		Subscriptions: subscriptions.New(&subscriptions.Config{
			ProPriceID:        "price_pro",
			EnterprisePriceID: "price_enterprise",
		}),
		Events:    events,
		Mail:      mail,
		WebAppURL: "https://app.mailclean.com.br",
	})
	c.Assert(err, qt.IsNil)
	c.Cleanup(s.Close)
	return s, mail
}

func newUser(c *qt.C) *db.User {
	id := uuid.New().String()
	user := &db.User{ID: id, Email: id[:8] + "@example.com", Name: "Ana " + id[:4]}
	c.Assert(testDB.CreateUser(context.Background(), user), qt.IsNil)
	return user
}

// signedEvent builds an event with the object and signs it with the test
// secret.
func signedEvent(c *qt.C, eventType stripeapi.EventType, object map[string]any) (id string, payload []byte, header string) {
	id = "evt_" + uuid.New().String()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": stripeapi.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	c.Assert(err, qt.IsNil)
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return id, payload, signed.Header
}

func TestHandleWebhookEvent(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	s, mail := newTestService(c, testDB)

	c.Run("InvalidSignature", func(c *qt.C) {
		user := newUser(c)
		_, payload, _ := signedEvent(c, stripeapi.EventTypeCheckoutSessionCompleted, map[string]any{
			"id": "cs_1", "object": "checkout.session", "client_reference_id": user.ID,
			"metadata": map[string]string{"plan": "pro"},
		})
		_, err := s.HandleWebhookEvent(ctx, payload, "t=1,v1=deadbeef")
		c.Assert(err, qt.ErrorIs, ErrWebhookValidation)
		stored, err := testDB.User(ctx, user.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(stored.Plan, qt.Equals, db.PlanFree)
	})

	c.Run("CheckoutCompleted", func(c *qt.C) {
		user := newUser(c)
		before := mail.count()
		id, payload, header := signedEvent(c, stripeapi.EventTypeCheckoutSessionCompleted, map[string]any{
			"id":                  "cs_" + user.ID[:8],
			"object":              "checkout.session",
			"client_reference_id": user.ID,
			"customer":            "cus_" + user.ID[:8],
			"subscription":        "sub_" + user.ID[:8],
			"metadata":            map[string]string{"plan": "pro"},
		})
		event, err := s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
		c.Assert(event.ID, qt.Equals, id)

		stored, err := testDB.User(ctx, user.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(stored.Plan, qt.Equals, db.PlanPro)
		c.Assert(stored.Subscription.StripeCustomerID, qt.Equals, "cus_"+user.ID[:8])
		c.Assert(stored.Subscription.StripeSubscriptionID, qt.Equals, "sub_"+user.ID[:8])
		c.Assert(mail.count(), qt.Equals, before+1)
		c.Assert(mail.last().ToAddress, qt.Equals, user.Email)
		c.Assert(mail.last().Subject, qt.Equals, "Pagamento confirmado - MailClean Pro")

		// the redelivery is skipped
		_, err = s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
		c.Assert(mail.count(), qt.Equals, before+1)
	})

	c.Run("CheckoutPlanFromPrice", func(c *qt.C) {
		user := newUser(c)
		_, payload, header := signedEvent(c, stripeapi.EventTypeCheckoutSessionCompleted, map[string]any{
			"id":                  "cs_" + user.ID[:8],
			"object":              "checkout.session",
			"client_reference_id": user.ID,
			"metadata":            map[string]string{"planId": "enterprise"},
			"line_items": map[string]any{
				"object": "list",
				"data": []map[string]any{{
					"id":     "li_1",
					"object": "item",
					"price":  map[string]any{"id": "price_pro", "object": "price", "unit_amount": 2900, "currency": "brl"},
				}},
			},
		})
		_, err := s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
		stored, err := testDB.User(ctx, user.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(stored.Plan, qt.Equals, db.PlanPro)
	})

	c.Run("CheckoutUnknownPrice", func(c *qt.C) {
		user := newUser(c)
		_, payload, header := signedEvent(c, stripeapi.EventTypeCheckoutSessionCompleted, map[string]any{
			"id":                  "cs_" + user.ID[:8],
			"object":              "checkout.session",
			"client_reference_id": user.ID,
			"metadata":            map[string]string{"plan": "enterprise"},
			"line_items": map[string]any{
				"object": "list",
				"data": []map[string]any{{
					"id":     "li_1",
					"object": "item",
					"price":  map[string]any{"id": "price_cheap", "object": "price", "unit_amount": 100, "currency": "brl"},
				}},
			},
		})
		_, err := s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
		stored, err := testDB.User(ctx, user.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(stored.Plan, qt.Equals, db.PlanFree)
	})

	c.Run("SubscriptionUpdatedByPrice", func(c *qt.C) {
		user := newUser(c)
		customer := "cus_" + user.ID[:8]
		_, err := testDB.SetUserSubscription(ctx, user.ID, "", db.UserSubscription{StripeCustomerID: customer})
		c.Assert(err, qt.IsNil)
		periodEnd := time.Date(2026, time.November, 14, 0, 0, 0, 0, time.UTC)
		_, payload, header := signedEvent(c, stripeapi.EventTypeCustomerSubscriptionUpdated, map[string]any{
			"id":       "sub_" + user.ID[:8],
			"object":   "subscription",
			"customer": customer,
			"status":   "active",
			"items": map[string]any{
				"object": "list",
				"data": []map[string]any{{
					"id":                 "si_1",
					"object":             "subscription_item",
					"price":              map[string]any{"id": "price_enterprise", "object": "price"},
					"current_period_end": periodEnd.Unix(),
				}},
			},
		})
		_, err = s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
		stored, err := testDB.User(ctx, user.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(stored.Plan, qt.Equals, db.PlanEnterprise)
		c.Assert(stored.Subscription.Status, qt.Equals, "active")
		c.Assert(stored.Subscription.RenewalDate.Equal(periodEnd), qt.IsTrue)
	})

	c.Run("SubscriptionPastDueKeepsPlan", func(c *qt.C) {
		user := newUser(c)
		_, err := testDB.SetUserPlan(ctx, user.ID, db.PlanPro)
		c.Assert(err, qt.IsNil)
		_, payload, header := signedEvent(c, stripeapi.EventTypeCustomerSubscriptionUpdated, map[string]any{
			"id":       "sub_" + user.ID[:8],
			"object":   "subscription",
			"status":   "past_due",
			"metadata": map[string]string{"userId": user.ID},
		})
		_, err = s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
		stored, err := testDB.User(ctx, user.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(stored.Plan, qt.Equals, db.PlanPro)
		c.Assert(stored.Subscription.Status, qt.Equals, "past_due")
	})

	c.Run("SubscriptionUnpaidDowngrades", func(c *qt.C) {
		user := newUser(c)
		_, err := testDB.SetUserPlan(ctx, user.ID, db.PlanPro)
		c.Assert(err, qt.IsNil)
		_, payload, header := signedEvent(c, stripeapi.EventTypeCustomerSubscriptionUpdated, map[string]any{
			"id":       "sub_" + user.ID[:8],
			"object":   "subscription",
			"status":   "unpaid",
			"metadata": map[string]string{"userId": user.ID},
		})
		_, err = s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
		stored, err := testDB.User(ctx, user.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(stored.Plan, qt.Equals, db.PlanFree)
	})

	c.Run("SubscriptionDeleted", func(c *qt.C) {
		user := newUser(c)
		subID := "sub_" + user.ID[:8]
		_, err := testDB.SetUserSubscription(ctx, user.ID, db.PlanPro, db.UserSubscription{StripeSubscriptionID: subID})
		c.Assert(err, qt.IsNil)
		before := mail.count()
		_, payload, header := signedEvent(c, stripeapi.EventTypeCustomerSubscriptionDeleted, map[string]any{
			"id":     subID,
			"object": "subscription",
			"status": "canceled",
		})
		_, err = s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
		stored, err := testDB.User(ctx, user.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(stored.Plan, qt.Equals, db.PlanFree)
		c.Assert(stored.Subscription.Status, qt.Equals, "canceled")
		c.Assert(mail.count(), qt.Equals, before+1)
		c.Assert(mail.last().PlainBody, qt.Contains, "Pro")
	})

	c.Run("InvoicePayments", func(c *qt.C) {
		user := newUser(c)
		customer := "cus_" + user.ID[:8]
		paidAt := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)
		_, payload, header := signedEvent(c, stripeapi.EventTypeInvoicePaymentSucceeded, map[string]any{
			"id":                 "in_ok",
			"object":             "invoice",
			"customer":           customer,
			"customer_email":     user.Email,
			"created":            paidAt.Unix(),
			"status_transitions": map[string]any{"paid_at": paidAt.Unix()},
		})
		_, err := s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
		stored, err := testDB.User(ctx, user.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(stored.Subscription.LastPaymentDate.Equal(paidAt), qt.IsTrue)
		c.Assert(stored.Subscription.StripeCustomerID, qt.Equals, customer)

		before := mail.count()
		failedAt := paidAt.AddDate(0, 1, 0)
		_, payload, header = signedEvent(c, stripeapi.EventTypeInvoicePaymentFailed, map[string]any{
			"id":       "in_failed",
			"object":   "invoice",
			"customer": customer,
			"created":  failedAt.Unix(),
			"parent": map[string]any{
				"type": "subscription_details",
				"subscription_details": map[string]any{
					"metadata":     map[string]string{"userId": user.ID},
					"subscription": "sub_" + user.ID[:8],
				},
			},
		})
		_, err = s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
		stored, err = testDB.User(ctx, user.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(stored.Subscription.LastPaymentFailedAt.Equal(failedAt), qt.IsTrue)
		c.Assert(stored.Subscription.LastPaymentDate.Equal(paidAt), qt.IsTrue)
		c.Assert(mail.count(), qt.Equals, before+1)
		c.Assert(mail.last().Subject, qt.Equals, "Falha no pagamento da sua assinatura MailClean")
	})

	c.Run("UnknownEventType", func(c *qt.C) {
		_, payload, header := signedEvent(c, "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
		_, err := s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
	})

	c.Run("UnmatchedUser", func(c *qt.C) {
		id, payload, header := signedEvent(c, stripeapi.EventTypeCustomerSubscriptionDeleted, map[string]any{
			"id": "sub_nobody", "object": "subscription", "customer": "cus_nobody",
		})
		_, err := s.HandleWebhookEvent(ctx, payload, header)
		c.Assert(err, qt.IsNil)
		processed, err := s.events.Processed(ctx, id)
		c.Assert(err, qt.IsNil)
		c.Assert(processed, qt.IsTrue)
	})
}

func TestHandleWebhookEventProcessingFailure(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	s, _ := newTestService(c, failingRepo{testDB})
	user := newUser(c)

	id, payload, header := signedEvent(c, stripeapi.EventTypeCustomerSubscriptionDeleted, map[string]any{
		"id": "sub_x", "object": "subscription", "metadata": map[string]string{"userId": user.ID},
	})
	_, err := s.HandleWebhookEvent(ctx, payload, header)
	c.Assert(err, qt.ErrorIs, ErrProcessingFailed)
	processed, err := s.events.Processed(ctx, id)
	c.Assert(err, qt.IsNil)
	c.Assert(processed, qt.IsFalse)
}

func TestNewService(t *testing.T) {
	c := qt.New(t)
	_, err := NewService(nil)
	c.Assert(err, qt.ErrorMatches, "stripe client is required")
	_, err = NewService(&ServiceConfig{Client: NewClient(nil)})
	c.Assert(err, qt.ErrorMatches, "database is required")
}

func TestPlanFromMetadata(t *testing.T) {
	c := qt.New(t)
	c.Assert(planFromMetadata(map[string]string{"plan": "pro"}), qt.Equals, db.PlanPro)
	c.Assert(planFromMetadata(map[string]string{"planId": "enterprise"}), qt.Equals, db.PlanEnterprise)
	c.Assert(planFromMetadata(map[string]string{"planType": "pro"}), qt.Equals, db.PlanPro)
	c.Assert(planFromMetadata(map[string]string{"plan": "gold"}), qt.Equals, db.PlanID(""))
	c.Assert(planFromMetadata(nil), qt.Equals, db.PlanID(""))
}
