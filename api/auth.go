package api

import (
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/mailclean/saas-backend/api/apicommon"
	"github.com/mailclean/saas-backend/auth/gotrue"
	"go.vocdoni.io/dvote/log"
)

// setSessionCookie stores the access token in the cookie checked by the
// route guard.
func (a *API) setSessionCookie(w http.ResponseWriter, session *gotrue.Session) time.Time {
	expiresAt := session.Expiry()
	if !expiresAt.After(time.Now()) {
		expiresAt = time.Now().Add(apicommon.DefaultSessionDuration)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     apicommon.AuthCookieName,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return expiresAt
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     apicommon.AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// signUpHandler registers a new account in the auth provider and creates its
// profile on the free plan. When the provider opens a session right away the
// session cookie is set too.
func (a *API) signUpHandler(w http.ResponseWriter, r *http.Request) {
	req := &apicommon.SignUpRequest{}
	if err := decodeBody(r, req); err != nil {
		writeError(w, err)
		return
	}
	res, err := a.auth.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		authError(err).Write(w)
		return
	}
	log.Debugw("new user", "id", res.User.ID)
	resp := &apicommon.SignUpResponse{User: res.User, ConfirmationRequired: res.Session == nil}
	if res.Session != nil {
		expiresAt := a.setSessionCookie(w, res.Session)
		resp.Token = res.Session.AccessToken
		resp.ExpiresAt = &expiresAt
	}
	apicommon.HTTPWriteJSON(w, resp)
}

// loginHandler exchanges the credentials for the access token of the auth
// provider, returned in the body and in the session cookie.
func (a *API) loginHandler(w http.ResponseWriter, r *http.Request) {
	req := &apicommon.LoginRequest{}
	if err := decodeBody(r, req); err != nil {
		writeError(w, err)
		return
	}
	res, err := a.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		authError(err).Write(w)
		return
	}
	expiresAt := a.setSessionCookie(w, res.Session)
	apicommon.HTTPWriteJSON(w, &apicommon.LoginResponse{
		Token:     res.Session.AccessToken,
		ExpiresAt: expiresAt,
		User:      res.User,
	})
}

// logoutHandler clears the session cookie and revokes the session in the
// auth provider when a token is present. A failed revocation is only logged,
// the local session is closed anyway.
func (a *API) logoutHandler(w http.ResponseWriter, r *http.Request) {
	token := jwtauth.TokenFromHeader(r)
	if token == "" {
		token = tokenFromCookie(r)
	}
	a.clearSessionCookie(w)
	if token != "" {
		if err := a.auth.SignOut(r.Context(), token); err != nil {
			log.Warnw("could not revoke session", "error", err)
		}
	}
	apicommon.HTTPWriteOK(w)
}

// recoverPasswordHandler sends the password recovery email.
func (a *API) recoverPasswordHandler(w http.ResponseWriter, r *http.Request) {
	req := &apicommon.EmailRequest{}
	if err := decodeBody(r, req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.auth.ResetPassword(r.Context(), req.Email); err != nil {
		authError(err).Write(w)
		return
	}
	apicommon.HTTPWriteOK(w)
}

// resendConfirmationHandler sends the sign up confirmation email again.
func (a *API) resendConfirmationHandler(w http.ResponseWriter, r *http.Request) {
	req := &apicommon.EmailRequest{}
	if err := decodeBody(r, req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.auth.ResendConfirmation(r.Context(), req.Email); err != nil {
		authError(err).Write(w)
		return
	}
	apicommon.HTTPWriteOK(w)
}
