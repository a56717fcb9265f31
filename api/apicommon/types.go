package apicommon

import (
	"time"

	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/subscriptions"
)

// SignUpRequest is the body of the sign up request.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// SignUpResponse is returned after a sign up. ConfirmationRequired is set
// when the provider sent a confirmation email instead of opening a session.
type SignUpResponse struct {
	User                 *db.User   `json:"user"`
	ConfirmationRequired bool       `json:"confirmationRequired"`
	Token                string     `json:"token,omitempty"`
	ExpiresAt            *time.Time `json:"expiresAt,omitempty"`
}

// LoginRequest is the body of the login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the access token issued by the auth provider.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *db.User  `json:"user,omitempty"`
}

// EmailRequest is the body of the requests that only need an email, like
// the password recovery or the confirmation resend.
type EmailRequest struct {
	Email string `json:"email"`
}

// UserProfileUpdate is the body of the profile update request.
type UserProfileUpdate struct {
	Name string `json:"name" validate:"required,max=100"`
}

// UserInfo is the profile of the authenticated user with its plan.
type UserInfo struct {
	*db.User
	PlanInfo *subscriptions.Plan `json:"planInfo"`
}

// EmailStatsUpdate is the body of the daily counters update.
type EmailStatsUpdate struct {
	EmailsProcessed int64   `json:"emailsProcessed" validate:"gte=0"`
	SpamBlocked     int64   `json:"spamBlocked" validate:"gte=0"`
	FalsePositives  int64   `json:"falsePositives" validate:"gte=0"`
	AIEfficiency    float64 `json:"aiEfficiency" validate:"gte=0,lte=100"`
}

// FilterRuleRequest is the body of the filter rule creation.
type FilterRuleRequest struct {
	Type         db.FilterRuleType `json:"type" validate:"oneof=blocked allowed"`
	EmailPattern string            `json:"emailPattern" validate:"required,emailpattern"`
}

// FilterRuleStatus is the body of the filter rule toggle.
type FilterRuleStatus struct {
	IsActive *bool `json:"isActive"`
}

// QuarantineEmailRequest is the body of the quarantine record creation.
type QuarantineEmailRequest struct {
	FromEmail  string                `json:"fromEmail" validate:"required,email"`
	Subject    string                `json:"subject" validate:"max=998"`
	Category   db.QuarantineCategory `json:"category" validate:"oneof=spam phishing"`
	Confidence float64               `json:"confidence" validate:"gte=0,lte=100"`
	ReceivedAt time.Time             `json:"receivedAt"`
}

// EmailAccountRequest is the body of the mailbox connection.
type EmailAccountRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Provider string `json:"provider" validate:"required,max=50"`
}

// PlanCheckoutRequest creates a checkout for one of the catalog plans with
// its inline price.
type PlanCheckoutRequest struct {
	Plan string `json:"plan"`
}

// PlanCheckoutResponse carries the hosted checkout URL.
type PlanCheckoutResponse struct {
	URL string `json:"url"`
}

// PriceCheckoutRequest creates a checkout for a Stripe price with a trial.
type PriceCheckoutRequest struct {
	PriceID string `json:"priceId"`
	PlanID  string `json:"planId"`
}

// PriceCheckoutResponse carries the checkout session id.
type PriceCheckoutResponse struct {
	SessionID string `json:"sessionId"`
}

// CustomerCheckoutRequest creates a checkout attached to the Stripe customer
// of the email.
type CustomerCheckoutRequest struct {
	PlanType  string `json:"planType"`
	UserEmail string `json:"userEmail"`
	UserID    string `json:"userId"`
}

// CustomerCheckoutResponse carries the checkout session id and URL.
type CustomerCheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// PortalResponse carries the billing portal URL.
type PortalResponse struct {
	URL string `json:"url"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Received bool `json:"received"`
}

// HealthResponse reports the state of the service dependencies.
type HealthResponse struct {
	Status   string          `json:"status"`
	Database string          `json:"database"`
	Auth     string          `json:"auth"`
	Config   map[string]bool `json:"config"`
}
