// Package gotrue adapts the Supabase auth client to the password flows the
// service uses. Every call runs under the caller context, transport failures
// and provider answers come back as typed errors.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	authgo "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
)

const (
	maxResponseBodyBytes = 1 << 20
	clientInfo           = "mailclean-brasil"
)

// User is the auth provider account.
type User struct {
	ID               string
	Email            string
	EmailConfirmedAt *time.Time
	ConfirmedAt      *time.Time
	CreatedAt        time.Time
	UserMetadata     map[string]any
}

func userFrom(u *types.User) *User {
	var confirmedAt *time.Time
	if !u.ConfirmedAt.IsZero() {
		t := u.ConfirmedAt
		confirmedAt = &t
	}
	return &User{
		ID:               u.ID.String(),
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		ConfirmedAt:      confirmedAt,
		CreatedAt:        u.CreatedAt,
		UserMetadata:     u.UserMetadata,
	}
}

// Name returns the name stored in the user metadata on sign up.
func (u *User) Name() string {
	name, _ := u.UserMetadata["name"].(string)
	return name
}

// Confirmed reports if the email of the user has been confirmed.
func (u *User) Confirmed() bool {
	return u.EmailConfirmedAt != nil || u.ConfirmedAt != nil
}

// Session is the token pair issued on sign in.
type Session struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	ExpiresAt    int64
	RefreshToken string
	User         *User
}

// Expiry returns the expiration time of the access token.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	return time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
}

// APIError is a non 2xx answer of the server. GoTrue versions disagree on
// the field names, Message holds the first one present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gotrue: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// ConnectionError is returned when no answer was received. Dial reports if
// the connection could not even be opened, so the request never reached the
// server.
type ConnectionError struct {
	Dial bool
	Err  error
}

func (e *ConnectionError) Error() string {
	return "failed to fetch: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Client calls a GoTrue server with the anonymous key of the project.
type Client struct {
	baseURL   string
	apiKey    string
	api       authgo.Client
	transport http.RoundTripper
}

// New creates a client for the server at baseURL. Supabase projects expose
// GoTrue under /auth/v1, which is appended when missing. A nil transport
// uses http.DefaultTransport.
func New(baseURL, apiKey string, transport http.RoundTripper) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL != "" && !strings.HasSuffix(baseURL, "/auth/v1") {
		baseURL += "/auth/v1"
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	apiKey = strings.TrimSpace(apiKey)
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		api:       authgo.New("", apiKey).WithCustomAuthURL(baseURL),
		transport: transport,
	}
}

// Configured reports if the server URL and the key are set.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// SignUp registers a new user. When the server requires email confirmation
// only the user is returned, otherwise a session too.
func (c *Client) SignUp(ctx context.Context, email, password, name string) (*User, *Session, error) {
	var resp *types.SignupResponse
	err := c.call(ctx, "", func(api authgo.Client) (err error) {
		resp, err = api.Signup(types.SignupRequest{
			Email:    email,
			Password: password,
			Data:     map[string]any{"name": name},
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if resp.AccessToken != "" {
		user := resp.Session.User
		session := &Session{
			AccessToken:  resp.AccessToken,
			TokenType:    resp.TokenType,
			ExpiresIn:    int64(resp.ExpiresIn),
			ExpiresAt:    int64(resp.ExpiresAt),
			RefreshToken: resp.RefreshToken,
			User:         userFrom(&user),
		}
		return session.User, session, nil
	}
	return userFrom(&resp.User), nil, nil
}

// SignInWithPassword exchanges the credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var resp *types.TokenResponse
	err := c.call(ctx, "", func(api authgo.Client) (err error) {
		resp, err = api.SignInWithEmailPassword(email, password)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    int64(resp.ExpiresIn),
		ExpiresAt:    int64(resp.ExpiresAt),
		RefreshToken: resp.RefreshToken,
		User:         userFrom(&resp.User),
	}, nil
}

// SignOut revokes the session of the access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.call(ctx, accessToken, func(api authgo.Client) error {
		return api.Logout()
	})
}

// Recover sends the password recovery email.
func (c *Client) Recover(ctx context.Context, email string) error {
	return c.call(ctx, "", func(api authgo.Client) error {
		return api.Recover(types.RecoverRequest{Email: email})
	})
}

// ResendSignup sends the sign up confirmation email again. The auth client
// has no resend call, so the request is made directly.
func (c *Client) ResendSignup(ctx context.Context, email string) error {
	payload, err := json.Marshal(map[string]string{"type": "signup", "email": email})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/resend", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	rec := c.recorderFor(ctx)
	resp, err := (&http.Client{Transport: rec}).Do(req)
	if rec.failure != nil {
		return rec.failure
	}
	if err != nil {
		return fmt.Errorf("gotrue: %w", err)
	}
	return resp.Body.Close()
}

// User returns the user of the access token.
func (c *Client) User(ctx context.Context, accessToken string) (*User, error) {
	var resp *types.UserResponse
	err := c.call(ctx, accessToken, func(api authgo.Client) (err error) {
		resp, err = api.GetUser()
		return err
	})
	if err != nil {
		return nil, err
	}
	return userFrom(&resp.User), nil
}

// Health checks that the server answers.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, "", func(api authgo.Client) error {
		_, err := api.HealthCheck()
		return err
	})
}

// call runs fn with a client bound to ctx. The failure seen by the transport
// takes precedence over the one reported by the auth client, which only
// carries the status code as text.
func (c *Client) call(ctx context.Context, accessToken string, fn func(authgo.Client) error) error {
	rec := c.recorderFor(ctx)
	api := c.api.WithClient(http.Client{Transport: rec})
	if accessToken != "" {
		api = api.WithToken(accessToken)
	}
	err := fn(api)
	if rec.failure != nil {
		return rec.failure
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("gotrue: %w", err)
	}
	return nil
}

func (c *Client) recorderFor(ctx context.Context) *recorder {
	return &recorder{ctx: ctx, base: c.transport}
}

// recorder binds the requests to a context and keeps the first transport or
// provider failure of a call. The response body is buffered so the auth
// client decodes it after the recorder inspected it.
type recorder struct {
	ctx     context.Context
	base    http.RoundTripper
	failure error
}

func (r *recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(r.ctx)
	req.Header.Set("X-Client-Info", clientInfo)
	resp, err := r.base.RoundTrip(req)
	if err != nil {
		var opErr *net.OpError
		return nil, r.fail(&ConnectionError{Dial: errors.As(err, &opErr) && opErr.Op == "dial", Err: err})
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	_ = resp.Body.Close()
	if err != nil {
		return nil, r.fail(&ConnectionError{Err: err})
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_ = r.fail(decodeError(resp.StatusCode, data))
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

func (r *recorder) fail(err error) error {
	if ctxErr := r.ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	if r.failure == nil {
		r.failure = err
	}
	return err
}

func decodeError(status int, data []byte) *APIError {
	var payload struct {
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Code = payload.ErrorCode
	if apiErr.Code == "" {
		apiErr.Code = payload.Error
	}
	for _, m := range []string{payload.Msg, payload.ErrorDescription, payload.Message, payload.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
