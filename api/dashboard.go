package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mailclean/saas-backend/api/apicommon"
	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/errors"
	"github.com/mailclean/saas-backend/internal"
	"github.com/mailclean/saas-backend/subscriptions"
)

// todayStatsHandler returns the counters of the current user for today. A
// day without activity returns zeroed counters.
func (a *API) todayStatsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	today := internal.DateKey(time.Now())
	stats, err := a.db.DailyStats(r.Context(), user.ID, today)
	if err != nil {
		if err != db.ErrNotFound {
			errors.ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
		stats = &db.EmailStats{UserID: user.ID, Date: today}
	}
	apicommon.HTTPWriteJSON(w, stats)
}

// updateTodayStatsHandler sets the counters of the current user for today.
func (a *API) updateTodayStatsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	req := &apicommon.EmailStatsUpdate{}
	if err := a.decodeValid(r, req, errors.ErrInvalidStats); err != nil {
		writeError(w, err)
		return
	}
	stats, err := a.db.UpsertDailyStats(r.Context(), &db.EmailStats{
		UserID:          user.ID,
		Date:            internal.DateKey(time.Now()),
		EmailsProcessed: req.EmailsProcessed,
		SpamBlocked:     req.SpamBlocked,
		FalsePositives:  req.FalsePositives,
		AIEfficiency:    req.AIEfficiency,
	})
	if err != nil {
		dbError(err, errors.ErrInvalidStats, errors.ErrInvalidStats).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, stats)
}

// weeklyStatsHandler returns the daily counters of the last seven days,
// oldest first.
func (a *API) weeklyStatsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	stats, err := a.db.WeeklyStats(r.Context(), user.ID, time.Now())
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, stats)
}

func (a *API) filterRulesHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	rules, err := a.db.FilterRules(r.Context(), user.ID)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, rules)
}

func (a *API) addFilterRuleHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	req := &apicommon.FilterRuleRequest{}
	if err := a.decodeValid(r, req, errors.ErrInvalidFilterRule); err != nil {
		writeError(w, err)
		return
	}
	rule := &db.FilterRule{UserID: user.ID, Type: req.Type, EmailPattern: req.EmailPattern}
	if err := a.db.AddFilterRule(r.Context(), rule); err != nil {
		dbError(err, errors.ErrFilterRuleNotFound, errors.ErrInvalidFilterRule).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, rule)
}

// updateFilterRuleHandler enables or disables a rule of the current user.
func (a *API) updateFilterRuleHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	req := &apicommon.FilterRuleStatus{}
	if err := decodeBody(r, req); err != nil {
		writeError(w, err)
		return
	}
	if req.IsActive == nil {
		errors.ErrInvalidFilterRule.With("isActive is required").Write(w)
		return
	}
	rule, err := a.db.SetFilterRuleActive(r.Context(), user.ID, chi.URLParam(r, "ruleID"), *req.IsActive)
	if err != nil {
		dbError(err, errors.ErrFilterRuleNotFound, errors.ErrInvalidFilterRule).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, rule)
}

func (a *API) deleteFilterRuleHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	if err := a.db.DelFilterRule(r.Context(), user.ID, chi.URLParam(r, "ruleID")); err != nil {
		dbError(err, errors.ErrFilterRuleNotFound, errors.ErrInvalidFilterRule).Write(w)
		return
	}
	apicommon.HTTPWriteOK(w)
}

// quarantineHandler returns the messages waiting for review, newest first.
// Only the plans with quarantine can list them.
func (a *API) quarantineHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	if _, err := a.subscriptions.HasDBPermission(r.Context(), user, subscriptions.UseQuarantine); err != nil {
		writeError(w, err)
		return
	}
	emails, err := a.db.QuarantineEmails(r.Context(), user.ID)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, emails)
}

// addQuarantineEmailHandler records a suspect message of the current user.
func (a *API) addQuarantineEmailHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	req := &apicommon.QuarantineEmailRequest{}
	if err := a.decodeValid(r, req, errors.ErrInvalidQuarantineEmail); err != nil {
		writeError(w, err)
		return
	}
	email := &db.QuarantineEmail{
		UserID:     user.ID,
		FromEmail:  req.FromEmail,
		Subject:    req.Subject,
		Category:   req.Category,
		Confidence: req.Confidence,
		ReceivedAt: req.ReceivedAt,
	}
	if err := a.db.AddQuarantineEmail(r.Context(), email); err != nil {
		dbError(err, errors.ErrQuarantineEmailNotFound, errors.ErrInvalidQuarantineEmail).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, email)
}

// releaseQuarantineEmailHandler marks the message as reviewed.
func (a *API) releaseQuarantineEmailHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	if err := a.db.ReleaseQuarantineEmail(r.Context(), user.ID, chi.URLParam(r, "emailID")); err != nil {
		dbError(err, errors.ErrQuarantineEmailNotFound, errors.ErrInvalidQuarantineEmail).Write(w)
		return
	}
	apicommon.HTTPWriteOK(w)
}

func (a *API) deleteQuarantineEmailHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	if err := a.db.DelQuarantineEmail(r.Context(), user.ID, chi.URLParam(r, "emailID")); err != nil {
		dbError(err, errors.ErrQuarantineEmailNotFound, errors.ErrInvalidQuarantineEmail).Write(w)
		return
	}
	apicommon.HTTPWriteOK(w)
}

func (a *API) emailAccountsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	accounts, err := a.db.EmailAccounts(r.Context(), user.ID)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, accounts)
}

// addEmailAccountHandler connects a mailbox if the plan of the user allows
// one more.
func (a *API) addEmailAccountHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	req := &apicommon.EmailAccountRequest{}
	if err := a.decodeValid(r, req, errors.ErrInvalidEmailAccount); err != nil {
		writeError(w, err)
		return
	}
	if _, err := a.subscriptions.HasDBPermission(r.Context(), user, subscriptions.AddEmailAccount); err != nil {
		writeError(w, err)
		return
	}
	account := &db.EmailAccount{UserID: user.ID, Email: req.Email, Provider: req.Provider}
	if err := a.db.AddEmailAccount(r.Context(), account); err != nil {
		dbError(err, errors.ErrEmailAccountNotFound, errors.ErrInvalidEmailAccount).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, account)
}

func (a *API) deleteEmailAccountHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	if err := a.db.DelEmailAccount(r.Context(), user.ID, chi.URLParam(r, "accountID")); err != nil {
		dbError(err, errors.ErrEmailAccountNotFound, errors.ErrInvalidEmailAccount).Write(w)
		return
	}
	apicommon.HTTPWriteOK(w)
}
