// Package auth forwards the credentials of the users to the hosted auth
// provider. Calls are bounded by a timeout, the idempotent ones are retried
// with exponential backoff, and failures carry portuguese messages.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mailclean/saas-backend/auth/gotrue"
	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/internal"
	"github.com/mailclean/saas-backend/metrics"
	"github.com/sethvargo/go-retry"
	"go.vocdoni.io/dvote/log"
)

// Timeouts of each attempt.
var (
	SignInTimeout  = 15 * time.Second
	SignUpTimeout  = 15 * time.Second
	DefaultTimeout = 10 * time.Second
	LookupTimeout  = 5 * time.Second
)

const (
	defaultRetryBase     = time.Second
	defaultMaxRetries    = 3
	defaultSignInRetries = 2
)

// Profiles stores the user profiles bound to the provider accounts.
type Profiles interface {
	CreateUser(ctx context.Context, user *db.User) error
	EnsureUser(ctx context.Context, user *db.User) (*db.User, error)
	User(ctx context.Context, id string) (*db.User, error)
}

// Config holds the provider location and the retry policy. Unset values take
// the defaults: one second base, three retries and two for sign in. A zero
// retry count disables the retries.
type Config struct {
	URL           string
	AnonKey       string
	RetryBase     time.Duration
	MaxRetries    *uint64
	SignInRetries *uint64
	Transport     http.RoundTripper
}

// Retries returns a retry count for the Config.
func Retries(n uint64) *uint64 {
	return &n
}

// Service is the auth wrapper.
type Service struct {
	client        *gotrue.Client
	profiles      Profiles
	retryBase     time.Duration
	maxRetries    uint64
	signInRetries uint64
}

// New creates the service. The profiles store is optional, without it no
// profile is created on sign up.
func New(conf *Config, profiles Profiles) *Service {
	if conf == nil {
		conf = &Config{}
	}
	s := &Service{
		client:        gotrue.New(conf.URL, conf.AnonKey, conf.Transport),
		profiles:      profiles,
		retryBase:     conf.RetryBase,
		maxRetries:    defaultMaxRetries,
		signInRetries: defaultSignInRetries,
	}
	if s.retryBase == 0 {
		s.retryBase = defaultRetryBase
	}
	if conf.MaxRetries != nil {
		s.maxRetries = *conf.MaxRetries
	}
	if conf.SignInRetries != nil {
		s.signInRetries = *conf.SignInRetries
	}
	return s
}

// Configured reports if the provider URL and key are set.
func (s *Service) Configured() bool {
	return s.client.Configured()
}

// SignUpResult is the outcome of a sign up. Session is nil when the provider
// requires the email to be confirmed first.
type SignUpResult struct {
	User    *db.User
	Session *gotrue.Session
}

// SignInResult is the outcome of a sign in.
type SignInResult struct {
	User    *db.User
	Session *gotrue.Session
}

// SignUp registers the account and creates its profile on the free plan.
// Sign up is not idempotent, it is repeated only when the connection to the
// provider could not be opened.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (*SignUpResult, error) {
	email = internal.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" {
		return nil, newError(ErrMissingCredentials, MsgMissingCredentials, nil)
	}
	var (
		account *gotrue.User
		session *gotrue.Session
	)
	retryable := func(err *Error) bool {
		var connErr *gotrue.ConnectionError
		return errors.As(err, &connErr) && connErr.Dial
	}
	err := s.run(ctx, "signup", SignUpTimeout, s.maxRetries, retryable, func(ctx context.Context) error {
		var err error
		account, session, err = s.client.SignUp(ctx, email, password, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	profile := &db.User{ID: account.ID, Email: email, Name: name, Plan: db.PlanFree}
	if s.profiles != nil {
		if err := s.profiles.CreateUser(ctx, profile); err != nil {
			if !errors.Is(err, db.ErrAlreadyExists) {
				return nil, newError(ErrProvider, MsgProvider, err)
			}
			if profile, err = s.profiles.User(ctx, account.ID); err != nil {
				return nil, newError(ErrProvider, MsgProvider, err)
			}
		}
	}
	return &SignUpResult{User: profile, Session: session}, nil
}

// SignIn exchanges the credentials for a session. The profile of accounts
// created before the service kept them is created on the fly.
func (s *Service) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	email = internal.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, newError(ErrMissingCredentials, MsgMissingCredentials, nil)
	}
	var session *gotrue.Session
	err := s.run(ctx, "signin", SignInTimeout, s.signInRetries, nil, func(ctx context.Context) error {
		var err error
		session, err = s.client.SignInWithPassword(ctx, email, password)
		return err
	})
	if err != nil {
		return nil, err
	}
	result := &SignInResult{Session: session}
	if s.profiles != nil && session.User != nil {
		profile := &db.User{
			ID:    session.User.ID,
			Email: session.User.Email,
			Name:  session.User.Name(),
		}
		if profile.Email == "" {
			profile.Email = email
		}
		if result.User, err = s.profiles.EnsureUser(ctx, profile); err != nil {
			log.Warnw("could not ensure user profile", "user", profile.ID, "error", err)
		}
	}
	return result, nil
}

// SignOut revokes the session of the access token.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	return s.run(ctx, "signout", DefaultTimeout, s.maxRetries, nil, func(ctx context.Context) error {
		return s.client.SignOut(ctx, accessToken)
	})
}

// ResetPassword sends the password recovery email.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	email = internal.NormalizeEmail(email)
	if email == "" {
		return newError(ErrMissingCredentials, MsgMissingCredentials, nil)
	}
	return s.run(ctx, "recover", DefaultTimeout, s.maxRetries, nil, func(ctx context.Context) error {
		return s.client.Recover(ctx, email)
	})
}

// ResendConfirmation sends the sign up confirmation email again.
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	email = internal.NormalizeEmail(email)
	if email == "" {
		return newError(ErrMissingCredentials, MsgMissingCredentials, nil)
	}
	return s.run(ctx, "resend", DefaultTimeout, s.maxRetries, nil, func(ctx context.Context) error {
		return s.client.ResendSignup(ctx, email)
	})
}

// User returns the provider account of the access token. It is a single
// attempt, the caller is waiting on it.
func (s *Service) User(ctx context.Context, accessToken string) (*gotrue.User, error) {
	var user *gotrue.User
	err := s.run(ctx, "user", LookupTimeout, 0, nil, func(ctx context.Context) error {
		var err error
		user, err = s.client.User(ctx, accessToken)
		return err
	})
	return user, err
}

// TestConnection checks that the provider answers.
func (s *Service) TestConnection(ctx context.Context) error {
	return s.run(ctx, "health", LookupTimeout, 0, nil, s.client.Health)
}

// run calls fn with a timeout for every attempt and repeats it with
// exponential backoff while the failure is retryable. A custom retryable
// check replaces the default one.
func (s *Service) run(ctx context.Context, op string, timeout time.Duration, maxRetries uint64,
	retryable func(*Error) bool, fn func(context.Context) error,
) error {
	if !s.client.Configured() {
		metrics.RecordAuthRequest(op, "not_configured")
		return newError(ErrNotConfigured, MsgNotConfigured, nil)
	}
	if retryable == nil {
		retryable = (*Error).Retryable
	}
	attempt := 0
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(s.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			metrics.RecordAuthRetry(op)
		}
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		authErr := translate(err)
		if retryable(authErr) {
			log.Debugw("auth provider call failed, retrying", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(authErr)
		}
		return authErr
	})
	if err == nil {
		metrics.RecordAuthRequest(op, "ok")
		return nil
	}
	authErr := translate(err)
	metrics.RecordAuthRequest(op, kindLabel(authErr.Kind))
	return authErr
}

func kindLabel(kind error) string {
	switch kind {
	case ErrNotConfigured:
		return "not_configured"
	case ErrMissingCredentials:
		return "missing_credentials"
	case ErrInvalidCredentials:
		return "invalid_credentials"
	case ErrEmailNotConfirmed:
		return "email_not_confirmed"
	case ErrTooManyRequests:
		return "too_many_requests"
	case ErrConnectivity:
		return "connectivity"
	case ErrTimeout:
		return "timeout"
	case ErrRejected:
		return "rejected"
	default:
		return "provider"
	}
}
