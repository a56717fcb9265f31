// Package api provides the HTTP API of the MailClean Brasil backend: the
// auth flows, the dashboard data of the users, the plan checkout and the
// Stripe webhook.
package api

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/mailclean/saas-backend/auth"
	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/stripe"
	"github.com/mailclean/saas-backend/subscriptions"
	"github.com/mailclean/saas-backend/validator"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.vocdoni.io/dvote/log"
)

// Config holds the dependencies and settings of the API.
type Config struct {
	Host string
	Port int
	// JWTSecret is the HS256 secret the auth provider signs the access
	// tokens with.
	JWTSecret string
	DB        *db.MongoStorage
	Auth      *auth.Service
	Stripe    *stripe.Service
	// Subscriptions is the plan catalog and permissions manager.
	Subscriptions *subscriptions.Subscriptions
	// WebAppURL is the public origin used to build the checkout redirect
	// URLs. The request origin is used when empty.
	WebAppURL string
	// PagesURL is where the web pages are served from. Requests that match
	// no API route are proxied there after the route guard.
	PagesURL string
	// SecureCookies marks the session cookie as Secure.
	SecureCookies bool
}

// API type represents the API HTTP server with JWT authentication capabilities.
type API struct {
	db            *db.MongoStorage
	jwt           *jwtauth.JWTAuth
	host          string
	port          int
	router        *chi.Mux
	auth          *auth.Service
	stripe        *stripe.Service
	subscriptions *subscriptions.Subscriptions
	webAppURL     string
	pages         http.Handler
	secureCookies bool
	validator     *validator.Validator
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *Config) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.DB == nil {
		return nil, fmt.Errorf("missing database")
	}
	if conf.Auth == nil {
		conf.Auth = auth.New(nil, conf.DB)
	}
	if conf.Subscriptions == nil {
		conf.Subscriptions = subscriptions.New(&subscriptions.Config{DB: conf.DB})
	}
	a := &API{
		db:            conf.DB,
		jwt:           jwtauth.New("HS256", []byte(conf.JWTSecret), nil),
		host:          conf.Host,
		port:          conf.Port,
		auth:          conf.Auth,
		stripe:        conf.Stripe,
		subscriptions: conf.Subscriptions,
		webAppURL:     conf.WebAppURL,
		secureCookies: conf.SecureCookies,
		validator:     validator.New(),
	}
	if conf.PagesURL != "" {
		target, err := url.Parse(conf.PagesURL)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid pages URL %q", conf.PagesURL)
		}
		a.pages = pagesProxy(target)
	}
	a.initRouter()
	return a, nil
}

// Router returns the HTTP handler with every route of the API.
func (a *API) Router() http.Handler {
	return a.router
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start() {
	go func() {
		srv := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", a.host, a.port),
			Handler:           a.router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	r.Use(middleware.Timeout(45 * time.Second))
	r.Use(requestMetrics)

	// protected routes
	r.Group(func(r chi.Router) {
		// seek, verify and validate JWT tokens
		r.Use(jwtauth.Verify(a.jwt, jwtauth.TokenFromHeader, tokenFromCookie))
		// handle valid JWT tokens
		r.Use(a.authenticator)
		// get user information
		log.Infow("new route", "method", "GET", "path", usersMeEndpoint)
		r.Get(usersMeEndpoint, a.userInfoHandler)
		// update user information
		log.Infow("new route", "method", "PUT", "path", usersMeEndpoint)
		r.Put(usersMeEndpoint, a.updateUserInfoHandler)
		// delete the profile of the current user
		log.Infow("new route", "method", "DELETE", "path", usersMeEndpoint)
		r.Delete(usersMeEndpoint, a.deleteUserHandler)
		// STATS ROUTES
		log.Infow("new route", "method", "GET", "path", statsTodayEndpoint)
		r.Get(statsTodayEndpoint, a.todayStatsHandler)
		log.Infow("new route", "method", "PUT", "path", statsTodayEndpoint)
		r.Put(statsTodayEndpoint, a.updateTodayStatsHandler)
		log.Infow("new route", "method", "GET", "path", statsWeeklyEndpoint)
		r.Get(statsWeeklyEndpoint, a.weeklyStatsHandler)
		// FILTER ROUTES
		log.Infow("new route", "method", "GET", "path", filtersEndpoint)
		r.Get(filtersEndpoint, a.filterRulesHandler)
		log.Infow("new route", "method", "POST", "path", filtersEndpoint)
		r.Post(filtersEndpoint, a.addFilterRuleHandler)
		log.Infow("new route", "method", "PUT", "path", filterEndpoint)
		r.Put(filterEndpoint, a.updateFilterRuleHandler)
		log.Infow("new route", "method", "DELETE", "path", filterEndpoint)
		r.Delete(filterEndpoint, a.deleteFilterRuleHandler)
		// QUARANTINE ROUTES
		log.Infow("new route", "method", "GET", "path", quarantineEndpoint)
		r.Get(quarantineEndpoint, a.quarantineHandler)
		log.Infow("new route", "method", "POST", "path", quarantineEndpoint)
		r.Post(quarantineEndpoint, a.addQuarantineEmailHandler)
		log.Infow("new route", "method", "POST", "path", quarantineReleaseEndpoint)
		r.Post(quarantineReleaseEndpoint, a.releaseQuarantineEmailHandler)
		log.Infow("new route", "method", "DELETE", "path", quarantineEmailEndpoint)
		r.Delete(quarantineEmailEndpoint, a.deleteQuarantineEmailHandler)
		// EMAIL ACCOUNT ROUTES
		log.Infow("new route", "method", "GET", "path", accountsEndpoint)
		r.Get(accountsEndpoint, a.emailAccountsHandler)
		log.Infow("new route", "method", "POST", "path", accountsEndpoint)
		r.Post(accountsEndpoint, a.addEmailAccountHandler)
		log.Infow("new route", "method", "DELETE", "path", accountEndpoint)
		r.Delete(accountEndpoint, a.deleteEmailAccountHandler)
		// get stripe billing portal session
		log.Infow("new route", "method", "GET", "path", stripePortalEndpoint)
		r.Get(stripePortalEndpoint, a.portalSessionHandler)
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get(pingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
			if _, err := w.Write([]byte(".")); err != nil {
				log.Warnw("failed to write ping response", "error", err)
			}
		})
		log.Infow("new route", "method", "GET", "path", healthEndpoint)
		r.Get(healthEndpoint, a.healthHandler)
		log.Infow("new route", "method", "GET", "path", metricsEndpoint)
		r.Method(http.MethodGet, metricsEndpoint, promhttp.Handler())
		// AUTH ROUTES
		log.Infow("new route", "method", "POST", "path", authSignUpEndpoint)
		r.Post(authSignUpEndpoint, a.signUpHandler)
		log.Infow("new route", "method", "POST", "path", authLoginEndpoint)
		r.Post(authLoginEndpoint, a.loginHandler)
		log.Infow("new route", "method", "POST", "path", authLogoutEndpoint)
		r.Post(authLogoutEndpoint, a.logoutHandler)
		log.Infow("new route", "method", "POST", "path", authRecoverEndpoint)
		r.Post(authRecoverEndpoint, a.recoverPasswordHandler)
		log.Infow("new route", "method", "POST", "path", authResendEndpoint)
		r.Post(authResendEndpoint, a.resendConfirmationHandler)
		// PLAN ROUTES
		log.Infow("new route", "method", "GET", "path", plansEndpoint)
		r.Get(plansEndpoint, a.plansHandler)
		log.Infow("new route", "method", "GET", "path", planInfoEndpoint)
		r.Get(planInfoEndpoint, a.planInfoHandler)
		// CHECKOUT ROUTES, bound to the user when a valid token is present
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verify(a.jwt, jwtauth.TokenFromHeader, tokenFromCookie))
			r.Use(a.optionalAuthenticator)
			log.Infow("new route", "method", "POST", "path", planCheckoutEndpoint)
			r.Post(planCheckoutEndpoint, a.planCheckoutHandler)
			log.Infow("new route", "method", "POST", "path", priceCheckoutEndpoint)
			r.Post(priceCheckoutEndpoint, a.priceCheckoutHandler)
			log.Infow("new route", "method", "POST", "path", customerCheckoutEndpoint)
			r.Post(customerCheckoutEndpoint, a.customerCheckoutHandler)
		})
		log.Infow("new route", "method", "GET", "path", checkoutSessionEndpoint)
		r.Get(checkoutSessionEndpoint, a.checkoutSessionHandler)
		// handle stripe webhook
		log.Infow("new route", "method", "POST", "path", webhookEndpoint)
		r.Post(webhookEndpoint, a.webhookHandler)
		log.Infow("new route", "method", "POST", "path", stripeWebhookEndpoint)
		r.Post(stripeWebhookEndpoint, a.webhookHandler)
	})

	// web pages, behind the cookie guard
	r.NotFound(routeGuard(a.pagesHandler()).ServeHTTP)
	a.router = r
}
