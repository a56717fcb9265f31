package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/mailclean/saas-backend/api/apicommon"
	"github.com/mailclean/saas-backend/db"
	apierrors "github.com/mailclean/saas-backend/errors"
	"github.com/mailclean/saas-backend/metrics"
	"go.vocdoni.io/dvote/log"
)

// protectedPagePrefixes need a session, authPages are only shown without one.
var (
	protectedPagePrefixes = []string{"/dashboard"}
	authPages             = []string{"/login", "/register", "/forgot-password"}
)

// tokenFromCookie finds the access token in the session cookie set on login.
func tokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(apicommon.AuthCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// userFromToken returns the profile of the subject of the verified token in
// the request context. Tokens of accounts without a profile yet get one from
// the email and name claims.
func (a *API) userFromToken(r *http.Request) (*db.User, error) {
	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return nil, apierrors.ErrUnauthorized.WithErr(err)
	}
	if token == nil || jwt.Validate(token, jwt.WithRequiredClaim(jwt.SubjectKey)) != nil {
		return nil, apierrors.ErrUnauthorized.Withf("sub claim not found in JWT token")
	}
	userID := token.Subject()
	user, err := a.db.User(r.Context(), userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, apierrors.ErrGenericInternalServerError.Withf("could not retrieve user from database: %v", err)
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return nil, apierrors.ErrUnauthorized.Withf("user not found")
	}
	profile := &db.User{ID: userID, Email: email}
	if metadata, ok := claims["user_metadata"].(map[string]any); ok {
		profile.Name, _ = metadata["name"].(string)
	}
	user, err = a.db.EnsureUser(r.Context(), profile)
	if err != nil {
		return nil, apierrors.ErrGenericInternalServerError.Withf("could not create user profile: %v", err)
	}
	log.Infow("user profile created from token", "user", userID)
	return user, nil
}

// authenticator is a middleware that requires a valid access token of the
// auth provider. The profile of the token subject is added to the request
// context for the next handlers.
func (a *API) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.userFromToken(r)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), apicommon.UserMetadataKey, *user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalAuthenticator adds the user to the context when the request
// carries a valid token, and passes anonymous requests through.
func (a *API) optionalAuthenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.userFromToken(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), apicommon.UserMetadataKey, *user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// routeGuard redirects the page requests by the presence of the session
// cookie. Its value is not verified here, the API routes do that.
func routeGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if target, redirect := guardRedirect(r.URL.Path, tokenFromCookie(r) != ""); redirect {
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// guardRedirect returns where a page request has to be redirected to.
func guardRedirect(path string, hasSession bool) (string, bool) {
	if !hasSession {
		for _, prefix := range protectedPagePrefixes {
			if strings.HasPrefix(path, prefix) {
				return "/login", true
			}
		}
		return "", false
	}
	for _, page := range authPages {
		if path == page {
			return "/dashboard", true
		}
	}
	return "", false
}

// pagesProxy forwards the page requests to the web app.
func pagesProxy(target *url.URL) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
		log.Warnw("failed to proxy page request", "target", target.String(), "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy
}

// pagesHandler serves the requests that match no API route.
func (a *API) pagesHandler() http.Handler {
	if a.pages != nil {
		return a.pages
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.ErrPageNotFound.Write(w)
	})
}

// requestMetrics observes the latency of every request by route pattern.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "pages"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequestDuration(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}
