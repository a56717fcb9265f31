package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/mailclean/saas-backend/api/apicommon"
	"github.com/mailclean/saas-backend/auth"
	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/stripe"
	"github.com/mailclean/saas-backend/subscriptions"
	"github.com/mailclean/saas-backend/test"
	stripeapi "github.com/stripe/stripe-go/v82"
)

const (
	testSecret        = "super-secret-jwt-key"
	testWebhookSecret = "whsec_api_test"
	testPassword      = "segredo123"
	testHost          = "127.0.0.1"
	testPort          = 7788
	testProPriceID    = "price_pro_test"
	testWebAppURL     = "https://app.mailclean.com.br"
)

var (
	// testDB is the MongoDB storage for the tests. Make it global so it can be
	// accessed by the tests directly.
	testDB *db.MongoStorage
	// testTokens signs the access tokens the fake auth provider issues.
	testTokens = jwtauth.New("HS256", []byte(testSecret), nil)
	// testStripe records the requests received by the fake Stripe API.
	testStripe = &fakeStripe{}
	// testAuthProvider is the fake auth provider.
	testAuthProvider = &fakeAuthProvider{users: map[string]string{}}
)

// testURL helper function returns the full URL for the given path using the
// test host and port.
func testURL(path string) string {
	return fmt.Sprintf("http://%s:%d%s", testHost, testPort, path)
}

// mustMarshal helper function marshalls the input interface into a byte slice.
// It panics if the marshalling fails.
func mustMarshal(i any) []byte {
	b, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}
	return b
}

// makeToken signs an access token like the ones of the auth provider.
func makeToken(userID, email string) string {
	_, token, err := testTokens.Encode(map[string]any{
		"sub":           userID,
		"email":         email,
		"aud":           "authenticated",
		"exp":           time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]any{"name": "Teste"},
	})
	if err != nil {
		panic(err)
	}
	return token
}

// newTestUser stores a profile on the plan and returns it with a valid token.
func newTestUser(c *qt.C, plan db.PlanID) (*db.User, string) {
	id := uuid.NewString()
	user := &db.User{ID: id, Email: id[:8] + "@example.com", Name: "Ana", Plan: plan}
	c.Assert(testDB.CreateUser(context.Background(), user), qt.IsNil)
	return user, makeToken(user.ID, user.Email)
}

// noRedirectClient returns the redirects instead of following them.
var noRedirectClient = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

// testRequest sends the request to the test API with the token as bearer,
// if any, and returns the response with its body.
func testRequest(c *qt.C, method, token, path string, body any, cookies ...*http.Cookie) (*http.Response, []byte) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		reader = bytes.NewReader(mustMarshal(b))
	}
	req, err := http.NewRequest(method, testURL(path), reader)
	c.Assert(err, qt.IsNil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	resp, err := noRedirectClient.Do(req)
	c.Assert(err, qt.IsNil)
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	c.Assert(err, qt.IsNil)
	return resp, data
}

// errorCode decodes the code of an error response.
func errorCode(c *qt.C, data []byte) (int, string) {
	body := struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}{}
	c.Assert(json.Unmarshal(data, &body), qt.IsNil, qt.Commentf("%s", data))
	return body.Code, body.Error
}

// fakeAuthProvider answers like a GoTrue server. Accounts are registered on
// sign up and every password but testPassword is wrong.
type fakeAuthProvider struct {
	mu    sync.Mutex
	users map[string]string // email to id
}

func (f *fakeAuthProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	email, _ := body["email"].(string)
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth/v1/signup":
		f.mu.Lock()
		id, ok := f.users[email]
		if !ok {
			id = uuid.NewString()
			f.users[email] = id
		}
		f.mu.Unlock()
		_, _ = w.Write(mustMarshal(map[string]any{"id": id, "email": email, "user_metadata": body["data"]}))
	case "/auth/v1/token":
		f.mu.Lock()
		id, ok := f.users[email]
		f.mu.Unlock()
		if !ok || body["password"] != testPassword {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_code":"invalid_credentials","msg":"Invalid login credentials"}`))
			return
		}
		_, _ = w.Write(mustMarshal(map[string]any{
			"access_token": makeToken(id, email),
			"token_type":   "bearer",
			"expires_in":   3600,
			"expires_at":   time.Now().Add(time.Hour).Unix(),
			"user":         map[string]any{"id": id, "email": email, "user_metadata": map[string]any{"name": "Teste"}},
		}))
	case "/auth/v1/health":
		_, _ = w.Write([]byte(`{"name":"GoTrue"}`))
	case "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

// fakeStripe answers the Stripe API calls of the billing handlers and keeps
// the form of the last checkout session created.
type fakeStripe struct {
	mu           sync.Mutex
	lastCheckout url.Values
	customers    int
}

func (f *fakeStripe) lastCheckoutForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCheckout
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
		f.lastCheckout = r.PostForm
		id := "cs_test_" + uuid.NewString()[:8]
		_, _ = w.Write(mustMarshal(map[string]any{
			"id": id, "object": "checkout.session", "url": "https://checkout.stripe.com/c/pay/" + id,
		}))
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/line_items"):
		_, _ = w.Write(mustMarshal(map[string]any{
			"object": "list", "has_more": false, "url": r.URL.Path,
			"data": []map[string]any{{
				"id": "li_test", "object": "item",
				"price": map[string]any{"id": testProPriceID, "object": "price", "unit_amount": 2900, "currency": "brl"},
			}},
		}))
	case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions/cs_missing":
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such checkout.session"}}`))
	case r.Method == http.MethodGet && len(r.URL.Path) > len("/v1/checkout/sessions/"):
		_, _ = w.Write(mustMarshal(map[string]any{
			"id": r.URL.Path[len("/v1/checkout/sessions/"):], "object": "checkout.session",
			"status": "complete", "payment_status": "paid", "customer_email": "maria@example.com",
			"metadata": map[string]string{"plan": "pro"},
		}))
	case r.Method == http.MethodGet && r.URL.Path == "/v1/customers":
		_, _ = w.Write([]byte(`{"object":"list","data":[],"has_more":false,"url":"/v1/customers"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/customers":
		f.customers++
		_, _ = w.Write(mustMarshal(map[string]any{
			"id": fmt.Sprintf("cus_test_%d", f.customers), "object": "customer", "email": r.PostForm.Get("email"),
		}))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/billing_portal/sessions":
		_, _ = w.Write(mustMarshal(map[string]any{
			"id": "bps_test", "object": "billing_portal.session",
			"url": "https://billing.stripe.com/p/session/" + r.PostForm.Get("customer"),
		}))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"unknown path"}}`))
	}
}

// pingAPI helper function pings the API endpoint and retries the request
// if it fails until the retries limit is reached.
func pingAPI(endpoint string, retries int) error {
	var pingErr error
	for i := 0; i < retries; i++ {
		var resp *http.Response
		if resp, pingErr = http.Get(endpoint); pingErr == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			pingErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		time.Sleep(time.Second)
	}
	return pingErr
}

// TestMain starts the MongoDB container, the fake auth provider and Stripe
// API, and the API server before running the tests.
func TestMain(m *testing.M) {
	ctx := context.Background()
	dbContainer, err := test.StartMongoContainer(ctx)
	if err != nil {
		panic(err)
	}
	mongoURI, err := dbContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		panic(err)
	}
	if testDB, err = db.New(mongoURI, test.RandomDatabaseName()); err != nil {
		panic(err)
	}

	authServer := httptest.NewServer(testAuthProvider)
	stripeServer := httptest.NewServer(testStripe)
	stripeapi.SetBackend(stripeapi.APIBackend, stripeapi.GetBackendWithConfig(stripeapi.APIBackend,
		&stripeapi.BackendConfig{
			URL:               stripeapi.String(stripeServer.URL),
			MaxNetworkRetries: stripeapi.Int64(0),
		}))

	plans := subscriptions.New(&subscriptions.Config{DB: testDB, ProPriceID: testProPriceID})
	events := stripe.NewMemoryEventStore(time.Hour)
	stripeService, err := stripe.NewService(&stripe.ServiceConfig{
		Client:        stripe.NewClient(&stripe.Config{APIKey: "sk_test_api", WebhookSecret: testWebhookSecret}),
		DB:            testDB,
		Subscriptions: plans,
		Events:        events,
		WebAppURL:     testWebAppURL,
	})
	if err != nil {
		panic(err)
	}
	testAPI, err := New(&Config{
		Host:          testHost,
		Port:          testPort,
		JWTSecret:     testSecret,
		DB:            testDB,
		Auth:          auth.New(&auth.Config{URL: authServer.URL, AnonKey: "anon", RetryBase: time.Millisecond}, testDB),
		Stripe:        stripeService,
		Subscriptions: plans,
		WebAppURL:     testWebAppURL,
	})
	if err != nil {
		panic(err)
	}
	testAPI.Start()
	if err := pingAPI(testURL(pingEndpoint), 5); err != nil {
		panic(err)
	}

	code := m.Run()

	events.Close()
	authServer.Close()
	stripeServer.Close()
	testDB.Close()
	_ = dbContainer.Terminate(ctx)
	os.Exit(code)
}

func TestPingAndHealth(t *testing.T) {
	c := qt.New(t)
	resp, body := testRequest(c, http.MethodGet, "", pingEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(string(body), qt.Equals, ".")

	resp, body = testRequest(c, http.MethodGet, "", healthEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	health := &apicommon.HealthResponse{}
	c.Assert(json.Unmarshal(body, health), qt.IsNil)
	c.Assert(health.Database, qt.Equals, "ok")
	c.Assert(health.Auth, qt.Equals, "ok")
	c.Assert(health.Config["billing"], qt.IsTrue)
	c.Assert(health.Config["webhook"], qt.IsTrue)
	c.Assert(health.Config["pages"], qt.IsFalse)

	resp, body = testRequest(c, http.MethodGet, "", metricsEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(string(body), qt.Contains, "mailclean_http_request_duration_seconds")
}

func TestPlans(t *testing.T) {
	c := qt.New(t)
	resp, body := testRequest(c, http.MethodGet, "", plansEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	plans := []*subscriptions.Plan{}
	c.Assert(json.Unmarshal(body, &plans), qt.IsNil)
	c.Assert(plans, qt.HasLen, 3)
	c.Assert(plans[1].PriceID, qt.Equals, testProPriceID)

	resp, body = testRequest(c, http.MethodGet, "", "/plans/enterprise", nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	plan := &subscriptions.Plan{}
	c.Assert(json.Unmarshal(body, plan), qt.IsNil)
	c.Assert(plan.PriceCents, qt.Equals, int64(9900))
	c.Assert(plan.Limits.Accounts, qt.Equals, subscriptions.Unlimited)

	resp, _ = testRequest(c, http.MethodGet, "", "/plans/platinum", nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusNotFound)
}
