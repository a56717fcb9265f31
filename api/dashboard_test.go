package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/mailclean/saas-backend/api/apicommon"
	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/errors"
	"github.com/mailclean/saas-backend/internal"
	"github.com/mailclean/saas-backend/validator"
)

func TestStats(t *testing.T) {
	c := qt.New(t)
	_, token := newTestUser(c, db.PlanFree)

	// no activity yet
	resp, body := testRequest(c, http.MethodGet, token, statsTodayEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	stats := &db.EmailStats{}
	c.Assert(json.Unmarshal(body, stats), qt.IsNil)
	c.Assert(stats.EmailsProcessed, qt.Equals, int64(0))
	c.Assert(stats.Date, qt.Equals, internal.DateKey(time.Now()))

	update := &apicommon.EmailStatsUpdate{EmailsProcessed: 120, SpamBlocked: 30, FalsePositives: 1, AIEfficiency: 97.5}
	resp, body = testRequest(c, http.MethodPut, token, statsTodayEndpoint, update)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK, qt.Commentf("%s", body))

	resp, body = testRequest(c, http.MethodGet, token, statsTodayEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(json.Unmarshal(body, stats), qt.IsNil)
	c.Assert(stats.SpamBlocked, qt.Equals, int64(30))
	c.Assert(stats.AIEfficiency, qt.Equals, 97.5)

	resp, body = testRequest(c, http.MethodGet, token, statsWeeklyEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	weekly := []db.EmailStats{}
	c.Assert(json.Unmarshal(body, &weekly), qt.IsNil)
	c.Assert(weekly, qt.HasLen, 1)

	resp, body = testRequest(c, http.MethodPut, token, statsTodayEndpoint, &apicommon.EmailStatsUpdate{AIEfficiency: 150})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusBadRequest)
	code, _ := errorCode(c, body)
	c.Assert(code, qt.Equals, errors.ErrInvalidStats.Code)
}

func TestFilterRules(t *testing.T) {
	c := qt.New(t)
	_, token := newTestUser(c, db.PlanFree)
	_, otherToken := newTestUser(c, db.PlanFree)

	resp, body := testRequest(c, http.MethodPost, token, filtersEndpoint, &apicommon.FilterRuleRequest{
		Type: db.FilterBlocked, EmailPattern: "*@promo.example.com",
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK, qt.Commentf("%s", body))
	rule := &db.FilterRule{}
	c.Assert(json.Unmarshal(body, rule), qt.IsNil)
	c.Assert(rule.IsActive, qt.IsTrue)

	resp, _ = testRequest(c, http.MethodPost, token, filtersEndpoint, &apicommon.FilterRuleRequest{
		Type: "maybe", EmailPattern: "x@example.com",
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusBadRequest)

	// the failing fields are returned with the error
	resp, body = testRequest(c, http.MethodPost, token, filtersEndpoint, &apicommon.FilterRuleRequest{
		Type: db.FilterAllowed, EmailPattern: "promo",
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusBadRequest)
	invalid := struct {
		Code int                        `json:"code"`
		Data validator.ValidationErrors `json:"data"`
	}{}
	c.Assert(json.Unmarshal(body, &invalid), qt.IsNil)
	c.Assert(invalid.Code, qt.Equals, errors.ErrInvalidFilterRule.Code)
	c.Assert(invalid.Data, qt.DeepEquals, validator.ValidationErrors{
		{Field: "emailPattern", Message: "Padrão de e-mail inválido"},
	})

	resp, body = testRequest(c, http.MethodGet, token, filtersEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	rules := []db.FilterRule{}
	c.Assert(json.Unmarshal(body, &rules), qt.IsNil)
	c.Assert(rules, qt.HasLen, 1)

	inactive := false
	resp, body = testRequest(c, http.MethodPut, token, "/filters/"+rule.ID, &apicommon.FilterRuleStatus{IsActive: &inactive})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK, qt.Commentf("%s", body))
	c.Assert(json.Unmarshal(body, rule), qt.IsNil)
	c.Assert(rule.IsActive, qt.IsFalse)

	resp, _ = testRequest(c, http.MethodPut, token, "/filters/"+rule.ID, &apicommon.FilterRuleStatus{})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusBadRequest)

	// rules of other users are not found
	resp, body = testRequest(c, http.MethodDelete, otherToken, "/filters/"+rule.ID, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusNotFound)
	code, _ := errorCode(c, body)
	c.Assert(code, qt.Equals, errors.ErrFilterRuleNotFound.Code)

	resp, _ = testRequest(c, http.MethodDelete, token, "/filters/"+rule.ID, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	resp, body = testRequest(c, http.MethodGet, token, filtersEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(string(body), qt.Equals, "[]\n")
}

func TestQuarantine(t *testing.T) {
	c := qt.New(t)
	_, freeToken := newTestUser(c, db.PlanFree)
	_, token := newTestUser(c, db.PlanPro)

	// the free plan has no quarantine
	resp, body := testRequest(c, http.MethodGet, freeToken, quarantineEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusForbidden)
	code, _ := errorCode(c, body)
	c.Assert(code, qt.Equals, errors.ErrFeatureNotInPlan.Code)

	older := time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)
	for _, req := range []*apicommon.QuarantineEmailRequest{
		{FromEmail: "promo@spam.example.com", Subject: "Oferta", Category: db.CategorySpam, Confidence: 88, ReceivedAt: older},
		{FromEmail: "banco@phish.example.com", Subject: "Atualize seus dados", Category: db.CategoryPhishing, Confidence: 99},
	} {
		resp, body = testRequest(c, http.MethodPost, token, quarantineEndpoint, req)
		c.Assert(resp.StatusCode, qt.Equals, http.StatusOK, qt.Commentf("%s", body))
	}
	resp, _ = testRequest(c, http.MethodPost, token, quarantineEndpoint, &apicommon.QuarantineEmailRequest{
		FromEmail: "x@example.com", Category: db.CategorySpam, Confidence: 120,
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusBadRequest)

	resp, body = testRequest(c, http.MethodGet, token, quarantineEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	emails := []db.QuarantineEmail{}
	c.Assert(json.Unmarshal(body, &emails), qt.IsNil)
	c.Assert(emails, qt.HasLen, 2)
	c.Assert(emails[0].Category, qt.Equals, db.CategoryPhishing)

	resp, _ = testRequest(c, http.MethodPost, token, "/quarantine/"+emails[0].ID+"/release", nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	resp, _ = testRequest(c, http.MethodDelete, token, "/quarantine/"+emails[1].ID, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	resp, _ = testRequest(c, http.MethodDelete, token, "/quarantine/"+emails[1].ID, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusNotFound)

	resp, body = testRequest(c, http.MethodGet, token, quarantineEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(json.Unmarshal(body, &emails), qt.IsNil)
	c.Assert(emails, qt.HasLen, 0)
}

func TestEmailAccounts(t *testing.T) {
	c := qt.New(t)
	_, token := newTestUser(c, db.PlanFree)

	resp, body := testRequest(c, http.MethodPost, token, accountsEndpoint, &apicommon.EmailAccountRequest{
		Email: "Work@Example.com", Provider: "gmail",
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK, qt.Commentf("%s", body))
	account := &db.EmailAccount{}
	c.Assert(json.Unmarshal(body, account), qt.IsNil)
	c.Assert(account.Email, qt.Equals, "work@example.com")

	// the free plan allows a single mailbox
	resp, body = testRequest(c, http.MethodPost, token, accountsEndpoint, &apicommon.EmailAccountRequest{
		Email: "home@example.com", Provider: "outlook",
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusForbidden)
	code, msg := errorCode(c, body)
	c.Assert(code, qt.Equals, errors.ErrAccountLimitReached.Code)
	c.Assert(msg, qt.Equals, errors.ErrAccountLimitReached.Message)

	resp, body = testRequest(c, http.MethodGet, token, accountsEndpoint, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	accounts := []db.EmailAccount{}
	c.Assert(json.Unmarshal(body, &accounts), qt.IsNil)
	c.Assert(accounts, qt.HasLen, 1)

	resp, _ = testRequest(c, http.MethodDelete, token, "/accounts/"+account.ID, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)

	_, proToken := newTestUser(c, db.PlanPro)
	for _, email := range []string{"a@example.com", "a@example.com"} {
		resp, _ = testRequest(c, http.MethodPost, proToken, accountsEndpoint, &apicommon.EmailAccountRequest{
			Email: email, Provider: "gmail",
		})
	}
	c.Assert(resp.StatusCode, qt.Equals, http.StatusConflict)
}
