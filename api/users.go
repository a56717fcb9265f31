package api

import (
	"net/http"
	"strings"

	"github.com/mailclean/saas-backend/api/apicommon"
	"github.com/mailclean/saas-backend/errors"
	"go.vocdoni.io/dvote/log"
)

// userInfoHandler returns the profile of the current user with the details
// of its plan.
func (a *API) userInfoHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.UserInfo{User: user, PlanInfo: a.subscriptions.UserPlan(user)})
}

// updateUserInfoHandler changes the display name of the current user.
func (a *API) updateUserInfoHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	req := &apicommon.UserProfileUpdate{}
	if err := a.decodeValid(r, req, errors.ErrInvalidUserData); err != nil {
		writeError(w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		errors.ErrInvalidUserData.With("name is required").Write(w)
		return
	}
	updated, err := a.db.UpdateUserName(r.Context(), user.ID, name)
	if err != nil {
		dbError(err, errors.ErrUserNotFound, errors.ErrInvalidUserData).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.UserInfo{User: updated, PlanInfo: a.subscriptions.UserPlan(updated)})
}

// deleteUserHandler removes the profile of the current user together with
// every record it owns and clears the session cookie. A running paid
// subscription has to be canceled first.
func (a *API) deleteUserHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	if a.subscriptions.UserPlan(user).Paid() && subscriptionRunning(user.Subscription.Status) {
		errors.ErrActiveSubscription.Withf("subscription %s is %s",
			user.Subscription.StripeSubscriptionID, user.Subscription.Status).Write(w)
		return
	}
	if err := a.db.DelUser(r.Context(), user.ID); err != nil {
		dbError(err, errors.ErrUserNotFound, errors.ErrInvalidUserData).Write(w)
		return
	}
	log.Infow("user deleted", "user", user.ID)
	a.clearSessionCookie(w)
	apicommon.HTTPWriteOK(w)
}

func subscriptionRunning(status string) bool {
	switch status {
	case "active", "trialing", "past_due":
		return true
	default:
		return false
	}
}
