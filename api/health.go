package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mailclean/saas-backend/api/apicommon"
	"go.vocdoni.io/dvote/log"
)

const healthTimeout = 5 * time.Second

// healthHandler reports the database and auth provider connectivity and
// which integrations are configured. It answers 503 only when the database
// is down, the rest of the checks are informative.
func (a *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	resp := &apicommon.HealthResponse{
		Status:   "ok",
		Database: "ok",
		Auth:     "ok",
		Config: map[string]bool{
			"auth":    a.auth.Configured(),
			"billing": a.stripe != nil && a.stripe.Client().Enabled(),
			"webhook": a.stripe != nil && a.stripe.Client().WebhookEnabled(),
			"pages":   a.pages != nil,
		},
	}
	status := http.StatusOK
	if err := a.db.Ping(ctx); err != nil {
		log.Warnw("health check: database unreachable", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	switch {
	case !a.auth.Configured():
		resp.Auth = "not_configured"
	default:
		if err := a.auth.TestConnection(ctx); err != nil {
			log.Warnw("health check: auth provider unreachable", "error", err)
			resp.Auth = "unreachable"
		}
	}
	apicommon.HTTPWriteJSONStatus(w, status, resp)
}
