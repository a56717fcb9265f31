package api

const (
	pingEndpoint    = "/ping"
	healthEndpoint  = "/health"
	metricsEndpoint = "/metrics"

	// auth routes

	// POST /auth/signup to register a new user
	authSignUpEndpoint = "/auth/signup"
	// POST /auth/login to login and get the access token
	authLoginEndpoint = "/auth/login"
	// POST /auth/logout to close the session
	authLogoutEndpoint = "/auth/logout"
	// POST /auth/recover to send the password recovery email
	authRecoverEndpoint = "/auth/recover"
	// POST /auth/resend to send the sign up confirmation email again
	authResendEndpoint = "/auth/resend"

	// user routes

	// GET /users/me to get the profile of the current user
	// PUT /users/me to update it
	usersMeEndpoint = "/users/me"

	// dashboard routes

	statsTodayEndpoint        = "/stats/today"
	statsWeeklyEndpoint       = "/stats/weekly"
	filtersEndpoint           = "/filters"
	filterEndpoint            = "/filters/{ruleID}"
	quarantineEndpoint        = "/quarantine"
	quarantineEmailEndpoint   = "/quarantine/{emailID}"
	quarantineReleaseEndpoint = "/quarantine/{emailID}/release"
	accountsEndpoint          = "/accounts"
	accountEndpoint           = "/accounts/{accountID}"

	// plan routes

	// GET /plans to get the plan catalog
	plansEndpoint = "/plans"
	// GET /plans/{planID} to get one plan
	planInfoEndpoint = "/plans/{planID}"

	// billing routes

	// POST /create-checkout-session to check out a plan with its inline price
	planCheckoutEndpoint = "/create-checkout-session"
	// POST /stripe/create-checkout-session to check out a price with a trial
	priceCheckoutEndpoint = "/stripe/create-checkout-session"
	// POST /stripe/create-checkout to check out as a Stripe customer
	customerCheckoutEndpoint = "/stripe/create-checkout"
	// GET /stripe/checkout/{sessionID} to get the status of a checkout
	checkoutSessionEndpoint = "/stripe/checkout/{sessionID}"
	// GET /stripe/portal to get the billing portal of the current user
	stripePortalEndpoint = "/stripe/portal"
	// POST /webhooks/stripe to receive the Stripe events
	webhookEndpoint = "/webhooks/stripe"
	// POST /stripe/webhook is an alias of the webhook endpoint
	stripeWebhookEndpoint = "/stripe/webhook"
)
