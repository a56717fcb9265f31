// Package subscriptions provides the plan catalog of the service and
// enforces the limits and features of each plan on the user actions.
package subscriptions

import (
	"context"
	"strings"

	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/errors"
)

// Unlimited is the limit value of the plans without a cap.
const Unlimited = -1

// Limits are the quotas of a plan.
type Limits struct {
	Accounts       int  `json:"accounts"`
	EmailsPerMonth int  `json:"emailsPerMonth"`
	Quarantine     bool `json:"quarantine"`
}

// Plan is a subscription plan users can check out.
type Plan struct {
	ID          db.PlanID `json:"id"`
	Name        string    `json:"name"`
	ProductName string    `json:"productName"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"priceCents"`
	Currency    string    `json:"currency"`
	PriceID     string    `json:"priceId,omitempty"`
	TrialDays   int64     `json:"trialDays,omitempty"`
	Features    []string  `json:"features"`
	Limits      Limits    `json:"limits"`
	Popular     bool      `json:"popular,omitempty"`
}

// Paid reports if the plan requires a checkout.
func (p *Plan) Paid() bool {
	return p.PriceCents > 0
}

func defaultPlans() []*Plan {
	return []*Plan{
		{
			ID:          db.PlanFree,
			Name:        "Gratuito",
			ProductName: "MailClean Gratuito",
			Currency:    "brl",
			Features: []string{
				"1 conta de e-mail",
				"Até 200 e-mails analisados/mês",
				"Detecção básica de spam",
				"Suporte por e-mail",
			},
			Limits: Limits{Accounts: 1, EmailsPerMonth: 200},
		},
		{
			ID:          db.PlanPro,
			Name:        "Pro",
			ProductName: "MailClean Pro",
			Description: "3 contas de e-mail, 5.000 e-mails/mês, IA avançada",
			PriceCents:  2900,
			Currency:    "brl",
			TrialDays:   7,
			Features: []string{
				"3 contas de e-mail",
				"5.000 e-mails analisados/mês",
				"Quarentena automática",
				"Detecção avançada de phishing",
				"Relatórios semanais",
				"Suporte prioritário",
			},
			Limits:  Limits{Accounts: 3, EmailsPerMonth: 5000, Quarantine: true},
			Popular: true,
		},
		{
			ID:          db.PlanEnterprise,
			Name:        "Empresarial",
			ProductName: "MailClean Empresarial",
			Description: "Contas ilimitadas, e-mails ilimitados, API completa",
			PriceCents:  9900,
			Currency:    "brl",
			TrialDays:   7,
			Features: []string{
				"Contas ilimitadas",
				"E-mails ilimitados",
				"Multiusuário",
				"API completa",
				"Relatórios detalhados",
				"Integração personalizada",
				"Suporte 24/7",
				"Gerente de conta dedicado",
			},
			Limits: Limits{Accounts: Unlimited, EmailsPerMonth: Unlimited, Quarantine: true},
		},
	}
}

// DBPermission represents the actions restricted by the plan of the user.
type DBPermission int

const (
	// AddEmailAccount represents the permission to connect one more mailbox.
	AddEmailAccount DBPermission = iota
	// UseQuarantine represents the permission to review quarantined messages.
	UseQuarantine
)

// String returns the string representation of the DBPermission.
func (p DBPermission) String() string {
	switch p {
	case AddEmailAccount:
		return "AddEmailAccount"
	case UseQuarantine:
		return "UseQuarantine"
	default:
		return "Unknown"
	}
}

// DBInterface defines the database methods required by the Subscriptions service
type DBInterface interface {
	CountEmailAccounts(ctx context.Context, userID string) (int64, error)
}

// Config holds the configuration for the subscriptions service. The price
// IDs are the Stripe prices of the paid plans, when empty the checkout uses
// the catalog amount inline.
type Config struct {
	DB                DBInterface
	ProPriceID        string
	EnterprisePriceID string
}

// Subscriptions is the service that holds the plan catalog and checks the
// user permissions against it.
type Subscriptions struct {
	db    DBInterface
	plans []*Plan
	byID  map[db.PlanID]*Plan
}

// New creates a new Subscriptions service with the given configuration.
func New(conf *Config) *Subscriptions {
	if conf == nil {
		conf = &Config{}
	}
	s := &Subscriptions{
		db:    conf.DB,
		plans: defaultPlans(),
		byID:  map[db.PlanID]*Plan{},
	}
	for _, p := range s.plans {
		switch p.ID {
		case db.PlanPro:
			p.PriceID = conf.ProPriceID
		case db.PlanEnterprise:
			p.PriceID = conf.EnterprisePriceID
		}
		s.byID[p.ID] = p
	}
	return s
}

// Plans returns every plan of the catalog, cheapest first.
func (s *Subscriptions) Plans() []*Plan {
	return s.plans
}

// Plan returns the plan with the given id.
func (s *Subscriptions) Plan(id db.PlanID) (*Plan, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// PaidPlan returns the plan with the given id only if it can be checked out.
func (s *Subscriptions) PaidPlan(id string) (*Plan, bool) {
	p, ok := s.byID[db.PlanID(id)]
	if !ok || !p.Paid() {
		return nil, false
	}
	return p, true
}

// PlanByPriceID returns the plan bound to the Stripe price.
func (s *Subscriptions) PlanByPriceID(priceID string) (*Plan, bool) {
	if priceID == "" {
		return nil, false
	}
	for _, p := range s.plans {
		if p.PriceID == priceID {
			return p, true
		}
	}
	return nil, false
}

// PricesConfigured reports if any paid plan is bound to a Stripe price.
func (s *Subscriptions) PricesConfigured() bool {
	for _, p := range s.plans {
		if p.Paid() && p.PriceID != "" {
			return true
		}
	}
	return false
}

// PlanForPrice returns the plan a Stripe price pays for. Prices created
// inline by the checkout have no known id, they match the plan with the same
// monthly amount and currency.
func (s *Subscriptions) PlanForPrice(priceID string, unitAmount int64, currency string) (*Plan, bool) {
	if p, ok := s.PlanByPriceID(priceID); ok {
		return p, true
	}
	for _, p := range s.plans {
		if p.Paid() && p.PriceCents == unitAmount && strings.EqualFold(p.Currency, currency) {
			return p, true
		}
	}
	return nil, false
}

// CheckoutPlan returns the plan bought with the price. A known price decides
// the plan and planID may only repeat it. Unknown prices are refused once
// prices are configured, otherwise planID names the plan.
func (s *Subscriptions) CheckoutPlan(priceID, planID string) (*Plan, error) {
	if p, ok := s.PlanByPriceID(priceID); ok {
		if planID != "" && db.PlanID(planID) != p.ID {
			return nil, errors.ErrInvalidPlan.Withf("price %s belongs to plan %s, not %s", priceID, p.ID, planID)
		}
		return p, nil
	}
	if s.PricesConfigured() {
		return nil, errors.ErrInvalidPlan.Withf("unknown price %q", priceID)
	}
	p, ok := s.PaidPlan(planID)
	if !ok {
		return nil, errors.ErrInvalidPlan.Withf("unknown plan %q", planID)
	}
	return p, nil
}

// UserPlan returns the plan of the user, falling back to the free plan for
// unknown values.
func (s *Subscriptions) UserPlan(user *db.User) *Plan {
	if user != nil {
		if p, ok := s.byID[user.Plan]; ok {
			return p
		}
	}
	return s.byID[db.PlanFree]
}

// CanAddEmailAccount checks if the plan of the user allows one more mailbox
// when it already has count of them.
func (s *Subscriptions) CanAddEmailAccount(user *db.User, count int64) error {
	plan := s.UserPlan(user)
	if plan.Limits.Accounts == Unlimited || count < int64(plan.Limits.Accounts) {
		return nil
	}
	return errors.ErrAccountLimitReached.Withf("plan %s allows %d accounts", plan.ID, plan.Limits.Accounts)
}

// HasQuarantine reports if the plan of the user includes the quarantine.
func (s *Subscriptions) HasQuarantine(user *db.User) bool {
	return s.UserPlan(user).Limits.Quarantine
}

// HasDBPermission checks if the plan of the user allows the action. It
// returns an errors.Error ready to be written when it does not.
func (s *Subscriptions) HasDBPermission(ctx context.Context, user *db.User, permission DBPermission) (bool, error) {
	if user == nil {
		return false, errors.ErrUnauthorized
	}
	switch permission {
	case AddEmailAccount:
		if s.UserPlan(user).Limits.Accounts == Unlimited {
			return true, nil
		}
		if s.db == nil {
			return false, errors.ErrGenericInternalServerError.With("subscriptions without database")
		}
		count, err := s.db.CountEmailAccounts(ctx, user.ID)
		if err != nil {
			return false, errors.ErrGenericInternalServerError.WithErr(err)
		}
		if err := s.CanAddEmailAccount(user, count); err != nil {
			return false, err
		}
		return true, nil
	case UseQuarantine:
		if !s.HasQuarantine(user) {
			return false, errors.ErrFeatureNotInPlan.Withf("quarantine not included in plan %s", s.UserPlan(user).ID)
		}
		return true, nil
	default:
		return false, errors.ErrGenericInternalServerError.Withf("unknown permission %s", permission)
	}
}
