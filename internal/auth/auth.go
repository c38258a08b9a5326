// Package auth authenticates callers against an OpenID Connect issuer and
// maps their token identity onto provisioned workflow accounts. There is no
// self-registration: an identity without a local user record is rejected.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"

	"github.com/c21501/rfc-service/internal/config"
	"github.com/c21501/rfc-service/internal/repository"
	"github.com/c21501/rfc-service/pkg/models"
)

const (
	stateCookie   = "auth_state"
	sessionCookie = "session_token"
)

// Logger is the narrow logging surface the middleware needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type contextKey string

const userContextKey contextKey = "current_user"

// CurrentUser returns the account RequireAuth resolved for this request.
func CurrentUser(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok
}

// WithUser returns a context carrying the user, for tests and internal
// callers that bypass HTTP.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// Auth holds the OIDC verifiers and the account lookup used to turn a token
// into a *models.User.
type Auth struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	apiVerifier  *oidc.IDTokenVerifier
	repo         repository.Repository
	logger       Logger
	authBypass   bool
}

// New builds the Auth layer. In a DEV environment with dev_mode_bypass set,
// token verification is skipped entirely; otherwise the OIDC discovery
// document is fetched from the configured issuer up front so a bad issuer
// fails at startup, not on the first request.
func New(ctx context.Context, cfg *config.Config, repo repository.Repository, logger Logger) (*Auth, error) {
	a := &Auth{
		repo:       repo,
		logger:     logger,
		authBypass: strings.ToUpper(cfg.Environment) == "DEV" && cfg.Auth.DevModeBypass,
	}
	if a.authBypass {
		logger.Info("authentication bypass active, all requests run as the dev account")
		return a, nil
	}

	if cfg.Auth.Issuer == "" || cfg.Auth.ClientID == "" ||
		cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
		return nil, errors.New("auth: issuer, client_id, client_secret and redirect_url are all required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("auth: discover issuer %s: %w", cfg.Auth.Issuer, err)
	}

	a.oauth2Config = &oauth2.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.Auth.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID})
	// Access tokens presented as Bearer usually carry the API's audience, not
	// the client id, so they get a verifier without the audience check.
	a.apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})

	return a, nil
}

// LoginHandler starts the authorization code flow. The CSRF state is kept in
// a cookie and checked on callback.
func (a *Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	state, err := randomState()
	if err != nil {
		http.Error(w, "could not start login", http.StatusInternalServerError)
		return
	}
	setCookie(w, stateCookie, state, 0)
	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler finishes the authorization code flow: state check, code
// exchange, ID token verification, then a session cookie holding the raw ID
// token.
func (a *Auth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	state, err := r.Cookie(stateCookie)
	if err != nil || r.URL.Query().Get("state") != state.Value {
		http.Error(w, "login state mismatch", http.StatusBadRequest)
		return
	}

	token, err := a.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "code exchange failed", http.StatusInternalServerError)
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "issuer returned no id_token", http.StatusInternalServerError)
		return
	}
	if _, err := a.verifier.Verify(r.Context(), rawIDToken); err != nil {
		http.Error(w, "id token rejected", http.StatusUnauthorized)
		return
	}

	setCookie(w, sessionCookie, rawIDToken, 0)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LogoutHandler drops the session cookie.
func (a *Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	setCookie(w, sessionCookie, "", -1)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RequireAuth verifies the caller's token (Bearer header for API clients,
// session cookie for browsers), resolves it to a local account and injects
// the account into the request context.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, username, ok := a.identify(w, r)
		if !ok {
			return
		}

		user, err := a.resolveUser(r.Context(), email, username)
		if err != nil {
			if a.logger != nil {
				a.logger.Error("authenticated identity has no account", "email", email, "error", err)
			}
			http.Error(w, "no local account for identity", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// identify extracts and verifies the caller's token, returning the identity
// claims. On failure it writes the response itself and returns ok=false.
func (a *Auth) identify(w http.ResponseWriter, r *http.Request) (email, username string, ok bool) {
	if a.authBypass {
		return "dev@localhost", "", true
	}

	var token *oidc.IDToken
	var err error
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token, err = a.apiVerifier.Verify(r.Context(), strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return "", "", false
		}
	} else {
		session, cerr := r.Cookie(sessionCookie)
		if cerr != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return "", "", false
		}
		token, err = a.verifier.Verify(r.Context(), session.Value)
		if err != nil {
			http.Error(w, "session expired", http.StatusUnauthorized)
			return "", "", false
		}
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := token.Claims(&claims); err != nil {
		http.Error(w, "unreadable token claims", http.StatusUnauthorized)
		return "", "", false
	}
	return claims.Email, claims.PreferredUsername, true
}

// resolveUser maps token identity to a local account, by email first and
// username second. In dev bypass mode a missing dev account falls back to the
// first administrator so a seeded database works out of the box.
func (a *Auth) resolveUser(ctx context.Context, email, username string) (*models.User, error) {
	if email != "" {
		if user, err := a.repo.FindUserByEmail(ctx, email); err == nil {
			return user, nil
		}
	}
	if username != "" {
		if user, err := a.repo.FindUserByUsername(ctx, username); err == nil {
			return user, nil
		}
	}
	if a.authBypass {
		admins, err := a.repo.ListUsersByRole(ctx, models.RoleAdmin)
		if err == nil && len(admins) > 0 {
			return admins[0], nil
		}
	}
	return nil, models.ErrAuthenticationFailed
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   maxAge,
	})
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
