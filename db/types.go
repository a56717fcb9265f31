package db

import (
	"time"
)

// PlanID identifies one of the subscription plans users can be on.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

// Valid reports if p is a known plan.
func (p PlanID) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// User is the dashboard profile of an account that lives in the hosted auth
// provider. The ID is the one assigned by the provider.
type User struct {
	ID           string           `json:"id" bson:"_id"`
	Email        string           `json:"email" bson:"email"`
	Name         string           `json:"name" bson:"name"`
	Plan         PlanID           `json:"plan" bson:"plan"`
	CreatedAt    time.Time        `json:"createdAt" bson:"createdAt"`
	Subscription UserSubscription `json:"subscription" bson:"subscription"`
}

// UserSubscription holds the billing state mirrored from Stripe webhooks.
type UserSubscription struct {
	StripeCustomerID     string    `json:"stripeCustomerId,omitempty" bson:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string    `json:"stripeSubscriptionId,omitempty" bson:"stripeSubscriptionId,omitempty"`
	Status               string    `json:"status,omitempty" bson:"status,omitempty"`
	RenewalDate          time.Time `json:"renewalDate,omitempty" bson:"renewalDate,omitempty"`
	LastPaymentDate      time.Time `json:"lastPaymentDate,omitempty" bson:"lastPaymentDate,omitempty"`
	LastPaymentFailedAt  time.Time `json:"lastPaymentFailedAt,omitempty" bson:"lastPaymentFailedAt,omitempty"`
}

// EmailAccount is a mailbox the user connected to be protected.
type EmailAccount struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"userId" bson:"userId"`
	Email     string    `json:"email" bson:"email"`
	Provider  string    `json:"provider" bson:"provider"`
	IsActive  bool      `json:"isActive" bson:"isActive"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// EmailStats are the daily counters of a user. There is at most one document
// per user and day.
type EmailStats struct {
	ID              string  `json:"id" bson:"_id"`
	UserID          string  `json:"userId" bson:"userId"`
	Date            string  `json:"date" bson:"date"`
	EmailsProcessed int64   `json:"emailsProcessed" bson:"emailsProcessed"`
	SpamBlocked     int64   `json:"spamBlocked" bson:"spamBlocked"`
	FalsePositives  int64   `json:"falsePositives" bson:"falsePositives"`
	AIEfficiency    float64 `json:"aiEfficiency" bson:"aiEfficiency"`
}

// FilterRuleType tells if a filter rule blocks or allows the senders matching
// its pattern.
type FilterRuleType string

const (
	FilterBlocked FilterRuleType = "blocked"
	FilterAllowed FilterRuleType = "allowed"
)

type FilterRule struct {
	ID           string         `json:"id" bson:"_id"`
	UserID       string         `json:"userId" bson:"userId"`
	Type         FilterRuleType `json:"type" bson:"type"`
	EmailPattern string         `json:"emailPattern" bson:"emailPattern"`
	IsActive     bool           `json:"isActive" bson:"isActive"`
	CreatedAt    time.Time      `json:"createdAt" bson:"createdAt"`
}

type QuarantineCategory string

const (
	CategorySpam     QuarantineCategory = "spam"
	CategoryPhishing QuarantineCategory = "phishing"
)

// QuarantineEmail is the metadata of a suspect message waiting for the user
// review.
type QuarantineEmail struct {
	ID         string             `json:"id" bson:"_id"`
	UserID     string             `json:"userId" bson:"userId"`
	FromEmail  string             `json:"fromEmail" bson:"fromEmail"`
	Subject    string             `json:"subject" bson:"subject"`
	Category   QuarantineCategory `json:"category" bson:"category"`
	Confidence float64            `json:"confidence" bson:"confidence"`
	ReceivedAt time.Time          `json:"receivedAt" bson:"receivedAt"`
	IsReviewed bool               `json:"isReviewed" bson:"isReviewed"`
}

// WebhookEvent records a processed payment provider event.
type WebhookEvent struct {
	ID          string    `bson:"_id"`
	Type        string    `bson:"type"`
	ProcessedAt time.Time `bson:"processedAt"`
}
