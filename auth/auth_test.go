package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	mariaID = "0f8e4a52-7c1d-4b8e-9a0b-3d5c6e7f8a91"
	joaoID  = "7a2c9e14-5b3f-4d61-8e2a-1c0b9d8f7e62"
)

type memProfiles struct {
	mu    sync.Mutex
	users map[string]*db.User
}

func newMemProfiles() *memProfiles {
	return &memProfiles{users: map[string]*db.User{}}
}

func (m *memProfiles) CreateUser(_ context.Context, user *db.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; ok {
		return db.ErrAlreadyExists
	}
	if user.Plan == "" {
		user.Plan = db.PlanFree
	}
	m.users[user.ID] = user
	return nil
}

func (m *memProfiles) EnsureUser(_ context.Context, user *db.User) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.users[user.ID]; ok {
		return stored, nil
	}
	if user.Plan == "" {
		user.Plan = db.PlanFree
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memProfiles) User(_ context.Context, id string) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, db.ErrNotFound
}

// flakyTransport fails the first calls without reaching the server.
type flakyTransport struct {
	failures int32
	dial     bool
	calls    atomic.Int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.failures {
		if f.dial {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		}
		return nil, &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}
	}
	return http.DefaultTransport.RoundTrip(req)
}

type provider struct {
	srv      *httptest.Server
	requests map[string]*atomic.Int32
	status   map[string]int
	delay    time.Duration
	mu       sync.Mutex
}

func newProvider(t *testing.T) *provider {
	p := &provider{requests: map[string]*atomic.Int32{}, status: map[string]int{}}
	for _, path := range []string{"/auth/v1/signup", "/auth/v1/token", "/auth/v1/logout",
		"/auth/v1/recover", "/auth/v1/resend", "/auth/v1/user", "/auth/v1/health"} {
		p.requests[path] = &atomic.Int32{}
	}
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *provider) fail(path string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status[path] = status
}

func (p *provider) count(path string) int32 {
	return p.requests[path].Load()
}

func (p *provider) serve(w http.ResponseWriter, r *http.Request) {
	if counter, ok := p.requests[r.URL.Path]; ok {
		counter.Add(1)
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-r.Context().Done():
			return
		}
	}
	p.mu.Lock()
	status := p.status[r.URL.Path]
	p.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch status {
	case 0:
	case http.StatusBadRequest:
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error_code":"invalid_credentials","msg":"Invalid login credentials"}`))
		return
	case http.StatusUnprocessableEntity:
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error_code":"weak_password","msg":"Password should be at least 6 characters"}`))
		return
	case http.StatusTooManyRequests:
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"msg":"Too many requests"}`))
		return
	case http.StatusUnauthorized:
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"Invalid API key"}`))
		return
	default:
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"msg":"upstream failure"}`))
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	switch r.URL.Path {
	case "/auth/v1/signup":
		_, _ = w.Write([]byte(`{"id":"` + mariaID + `","email":"maria@example.com","user_metadata":{"name":"Maria"}}`))
	case "/auth/v1/token":
		_, _ = w.Write([]byte(`{"access_token":"jwt","token_type":"bearer","expires_in":3600,
			"user":{"id":"` + joaoID + `","email":"joao@example.com","user_metadata":{"name":"João"}}}`))
	case "/auth/v1/user":
		_, _ = w.Write([]byte(`{"id":"` + joaoID + `","email":"joao@example.com"}`))
	case "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

func newTestService(p *provider, profiles Profiles, doer *flakyTransport) *Service {
	conf := &Config{URL: p.srv.URL, AnonKey: "anon", RetryBase: time.Millisecond}
	if doer != nil {
		conf.Transport = doer
	}
	return New(conf, profiles)
}

func TestNotConfigured(t *testing.T) {
	c := qt.New(t)
	s := New(&Config{URL: "https://project.supabase.co"}, nil)
	c.Assert(s.Configured(), qt.IsFalse)
	_, err := s.SignIn(context.Background(), "a@example.com", "x")
	c.Assert(err, qt.ErrorIs, ErrNotConfigured)
	c.Assert(err.Error(), qt.Equals, MsgNotConfigured)
	c.Assert(s.TestConnection(context.Background()), qt.ErrorIs, ErrNotConfigured)
}

func TestMissingCredentials(t *testing.T) {
	c := qt.New(t)
	p := newProvider(t)
	s := newTestService(p, nil, nil)
	_, err := s.SignUp(context.Background(), "  ", "secret", "Maria")
	c.Assert(err, qt.ErrorIs, ErrMissingCredentials)
	_, err = s.SignIn(context.Background(), "a@example.com", "")
	c.Assert(err.Error(), qt.Equals, MsgMissingCredentials)
	c.Assert(s.ResetPassword(context.Background(), ""), qt.ErrorIs, ErrMissingCredentials)
	c.Assert(p.count("/auth/v1/token"), qt.Equals, int32(0))
}

func TestSignUp(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	p := newProvider(t)
	profiles := newMemProfiles()
	s := newTestService(p, profiles, nil)

	res, err := s.SignUp(ctx, " Maria@Example.com ", "segredo123", " Maria ")
	c.Assert(err, qt.IsNil)
	c.Assert(res.Session, qt.IsNil)
	c.Assert(res.User.ID, qt.Equals, mariaID)
	c.Assert(res.User.Email, qt.Equals, "maria@example.com")
	c.Assert(res.User.Name, qt.Equals, "Maria")
	c.Assert(res.User.Plan, qt.Equals, db.PlanFree)

	// the profile already exists, the stored one is returned
	profiles.users[mariaID].Plan = db.PlanPro
	res, err = s.SignUp(ctx, "maria@example.com", "segredo123", "Maria")
	c.Assert(err, qt.IsNil)
	c.Assert(res.User.Plan, qt.Equals, db.PlanPro)

	c.Run("Rejected", func(c *qt.C) {
		p.fail("/auth/v1/signup", http.StatusUnprocessableEntity)
		defer p.fail("/auth/v1/signup", 0)
		_, err := s.SignUp(ctx, "new@example.com", "123", "")
		c.Assert(err, qt.ErrorIs, ErrRejected)
		c.Assert(err.Error(), qt.Equals, "Password should be at least 6 characters")
	})

	c.Run("NotRetriedOnServerError", func(c *qt.C) {
		p.fail("/auth/v1/signup", http.StatusBadGateway)
		defer p.fail("/auth/v1/signup", 0)
		before := p.count("/auth/v1/signup")
		_, err := s.SignUp(ctx, "new@example.com", "segredo123", "")
		c.Assert(err, qt.ErrorIs, ErrProvider)
		c.Assert(p.count("/auth/v1/signup")-before, qt.Equals, int32(1))
	})
}

func TestSignUpRetriesOnlyDialFailures(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	p := newProvider(t)

	retries := testutil.ToFloat64(metrics.AuthRetries.WithLabelValues("signup"))
	doer := &flakyTransport{failures: 2, dial: true}
	s := newTestService(p, newMemProfiles(), doer)
	_, err := s.SignUp(ctx, "maria@example.com", "segredo123", "Maria")
	c.Assert(err, qt.IsNil)
	c.Assert(doer.calls.Load(), qt.Equals, int32(3))
	c.Assert(testutil.ToFloat64(metrics.AuthRetries.WithLabelValues("signup"))-retries, qt.Equals, float64(2))

	// the request may have reached the provider
	doer = &flakyTransport{failures: 1}
	s = newTestService(p, newMemProfiles(), doer)
	_, err = s.SignUp(ctx, "maria@example.com", "segredo123", "Maria")
	c.Assert(err, qt.ErrorIs, ErrConnectivity)
	c.Assert(err.Error(), qt.Equals, MsgConnectivity)
	c.Assert(doer.calls.Load(), qt.Equals, int32(1))
}

func TestSignIn(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	p := newProvider(t)
	profiles := newMemProfiles()
	s := newTestService(p, profiles, nil)

	res, err := s.SignIn(ctx, "JOAO@example.com", "segredo123")
	c.Assert(err, qt.IsNil)
	c.Assert(res.Session.AccessToken, qt.Equals, "jwt")
	c.Assert(res.User.ID, qt.Equals, joaoID)
	c.Assert(res.User.Name, qt.Equals, "João")
	c.Assert(profiles.users, qt.HasLen, 1)

	c.Run("InvalidCredentials", func(c *qt.C) {
		p.fail("/auth/v1/token", http.StatusBadRequest)
		defer p.fail("/auth/v1/token", 0)
		before := p.count("/auth/v1/token")
		_, err := s.SignIn(ctx, "joao@example.com", "wrong")
		c.Assert(err, qt.ErrorIs, ErrInvalidCredentials)
		c.Assert(err.Error(), qt.Equals, MsgInvalidCredentials)
		c.Assert(p.count("/auth/v1/token")-before, qt.Equals, int32(1))
	})

	c.Run("TooManyRequests", func(c *qt.C) {
		p.fail("/auth/v1/token", http.StatusTooManyRequests)
		defer p.fail("/auth/v1/token", 0)
		_, err := s.SignIn(ctx, "joao@example.com", "segredo123")
		c.Assert(err, qt.ErrorIs, ErrTooManyRequests)
	})

	c.Run("InvalidAPIKey", func(c *qt.C) {
		p.fail("/auth/v1/token", http.StatusUnauthorized)
		defer p.fail("/auth/v1/token", 0)
		before := p.count("/auth/v1/token")
		_, err := s.SignIn(ctx, "joao@example.com", "segredo123")
		c.Assert(err, qt.ErrorIs, ErrNotConfigured)
		c.Assert(err.Error(), qt.Equals, MsgInvalidAPIKey)
		c.Assert(p.count("/auth/v1/token")-before, qt.Equals, int32(1))
	})

	c.Run("ServerErrorRetried", func(c *qt.C) {
		p.fail("/auth/v1/token", http.StatusServiceUnavailable)
		defer p.fail("/auth/v1/token", 0)
		before := p.count("/auth/v1/token")
		_, err := s.SignIn(ctx, "joao@example.com", "segredo123")
		c.Assert(err, qt.ErrorIs, ErrProvider)
		c.Assert(err.Error(), qt.Equals, MsgProvider)
		// two retries after the first attempt
		c.Assert(p.count("/auth/v1/token")-before, qt.Equals, int32(3))
	})
}

func TestTimeout(t *testing.T) {
	c := qt.New(t)
	previous := DefaultTimeout
	DefaultTimeout = 20 * time.Millisecond
	defer func() { DefaultTimeout = previous }()

	p := newProvider(t)
	p.delay = 200 * time.Millisecond
	s := newTestService(p, nil, nil)
	err := s.ResetPassword(context.Background(), "maria@example.com")
	c.Assert(err, qt.ErrorIs, ErrTimeout)
	c.Assert(err.Error(), qt.Equals, MsgTimeout)
	// timeouts are retried, three retries by default
	c.Assert(p.count("/auth/v1/recover"), qt.Equals, int32(4))
}

func TestCanceledContext(t *testing.T) {
	c := qt.New(t)
	p := newProvider(t)
	p.delay = time.Second
	s := newTestService(p, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.ResendConfirmation(ctx, "maria@example.com")
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)
	c.Assert(p.count("/auth/v1/resend"), qt.Equals, int32(1))
}

func TestSessionCalls(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	p := newProvider(t)
	s := newTestService(p, nil, nil)

	user, err := s.User(ctx, "jwt")
	c.Assert(err, qt.IsNil)
	c.Assert(user.ID, qt.Equals, joaoID)
	c.Assert(s.SignOut(ctx, "jwt"), qt.IsNil)
	c.Assert(s.ResendConfirmation(ctx, "maria@example.com"), qt.IsNil)
	c.Assert(s.TestConnection(ctx), qt.IsNil)

	p.fail("/auth/v1/health", http.StatusBadGateway)
	c.Assert(s.TestConnection(ctx), qt.ErrorIs, ErrProvider)
	c.Assert(p.count("/auth/v1/health"), qt.Equals, int32(2))
}

func TestRetriesDisabled(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	p := newProvider(t)
	s := New(&Config{
		URL:           p.srv.URL,
		AnonKey:       "anon",
		RetryBase:     time.Millisecond,
		MaxRetries:    Retries(0),
		SignInRetries: Retries(0),
	}, nil)

	p.fail("/auth/v1/recover", http.StatusBadGateway)
	c.Assert(s.ResetPassword(ctx, "maria@example.com"), qt.ErrorIs, ErrProvider)
	c.Assert(p.count("/auth/v1/recover"), qt.Equals, int32(1))

	p.fail("/auth/v1/token", http.StatusServiceUnavailable)
	_, err := s.SignIn(ctx, "joao@example.com", "segredo123")
	c.Assert(err, qt.ErrorIs, ErrProvider)
	c.Assert(p.count("/auth/v1/token"), qt.Equals, int32(1))

	doer := &flakyTransport{failures: 1, dial: true}
	s = New(&Config{URL: p.srv.URL, AnonKey: "anon", MaxRetries: Retries(0), Transport: doer}, nil)
	_, err = s.SignUp(ctx, "maria@example.com", "segredo123", "Maria")
	c.Assert(err, qt.ErrorIs, ErrConnectivity)
	c.Assert(doer.calls.Load(), qt.Equals, int32(1))
}
