package stripe

import "time"

// DefaultEventTTL is how long processed webhook event ids are remembered.
// Stripe retries undelivered events for up to three days.
const DefaultEventTTL = 72 * time.Hour

// Config holds the Stripe credentials of the service.
type Config struct {
	APIKey        string `json:"api_key"`
	WebhookSecret string `json:"webhook_secret"`
	// MaxRetries is the number of extra attempts of the idempotent read calls
	// when Stripe answers with a temporary error.
	MaxRetries uint64 `json:"max_retries"`
	// RetryBase is the first backoff interval of the read calls, doubled on
	// every attempt.
	RetryBase time.Duration `json:"retry_base"`
}

// Enabled reports if the API key is set, so checkout sessions can be
// created.
func (c *Config) Enabled() bool {
	return c != nil && c.APIKey != ""
}

func (c *Config) withDefaults() *Config {
	conf := *c
	if conf.MaxRetries == 0 {
		conf.MaxRetries = 2
	}
	if conf.RetryBase == 0 {
		conf.RetryBase = 500 * time.Millisecond
	}
	return &conf
}
