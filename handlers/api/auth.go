package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nijaru/videoverse/auth"
	"github.com/nijaru/videoverse/config"
	"github.com/nijaru/videoverse/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const stateCookieName = "videoverse_oauth_state"

// IdentityProvider is the sign-in half of auth.GoogleProvider.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, auth.Identity, error)
}

type AuthHandler struct {
	provider IdentityProvider
	store    auth.SessionStore
	codec    *auth.CookieCodec
	tokens   *auth.Tokens
	config   config.SessionConfig
	logger   *logrus.Logger
	now      func() time.Time
}

func NewAuthHandler(
	provider IdentityProvider,
	store auth.SessionStore,
	codec *auth.CookieCodec,
	tokens *auth.Tokens,
	cfg config.SessionConfig,
	logger *logrus.Logger,
) *AuthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthHandler{
		provider: provider,
		store:    store,
		codec:    codec,
		tokens:   tokens,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// principal is the caller of an authenticated route.
type principal struct {
	session auth.Session
	tokens  auth.SessionTokenSource
}

type sessionHandlerFunc func(w http.ResponseWriter, r *http.Request, p principal)

// Require rejects requests without a live session.
func (h *AuthHandler) Require(next sessionHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.session(r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		next(w, r, principal{session: s, tokens: h.tokens.For(s.ID)})
	}
}

func (h *AuthHandler) session(r *http.Request) (auth.Session, error) {
	const op = "AuthHandler.session"

	cookie, err := r.Cookie(h.config.CookieName)
	if err != nil {
		return auth.Session{}, errors.Unauthenticated(op, auth.ErrLoginRequired, "")
	}
	sessionID, _, err := h.codec.Decode(cookie.Value)
	if err != nil {
		return auth.Session{}, errors.Unauthenticated(op, err, "")
	}
	s, ok := h.store.Get(sessionID)
	if !ok || !s.SignedIn() {
		return auth.Session{}, errors.Unauthenticated(op, auth.ErrLoginRequired, "Session expired, please sign in again")
	}
	return s, nil
}

// HandleLogin handles GET /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback handles GET /auth/callback
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	const op = "AuthHandler.HandleCallback"
	logger := h.logger.WithField("operation", op)

	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		logger.WithField("reason", reason).Info("Sign-in cancelled at provider")
		respondError(w, r, errors.Unauthenticated(op, nil, "Sign-in was cancelled"))
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != query.Get("state") {
		respondError(w, r, errors.InvalidInput(op, err, "Invalid sign-in state"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/auth", MaxAge: -1})

	code := query.Get("code")
	if code == "" {
		respondError(w, r, errors.InvalidInput(op, nil, "Missing authorization code"))
		return
	}

	token, identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		logger.WithError(err).Warn("Sign-in exchange failed")
		respondError(w, r, errors.Unauthenticated(op, err, "Sign-in failed"))
		return
	}

	s := auth.Session{
		ID:           uuid.New().String(),
		UserID:       identity.UserID,
		Email:        identity.Email,
		DisplayName:  identity.DisplayName,
		PhotoURL:     identity.PhotoURL,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		CreatedAt:    h.now(),
	}

	value, err := h.codec.Encode(s)
	if err != nil {
		respondError(w, r, errors.Internal(op, err, "Failed to create session"))
		return
	}
	h.store.Save(s)
	h.setSessionCookie(w, value, int(h.config.TTL.Seconds()))

	logger.WithFields(logrus.Fields{
		"user_id":    s.UserID,
		"session_id": s.ID,
	}).Info("User signed in")

	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleLogout handles POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.config.CookieName); err == nil {
		if sessionID, _, err := h.codec.Decode(cookie.Value); err == nil {
			h.store.Delete(sessionID)
		}
	}
	h.setSessionCookie(w, "", -1)
	respondJSON(w, r, http.StatusOK, map[string]bool{"signedOut": true})
}

// HandleMe handles GET /api/v1/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request, p principal) {
	respondJSON(w, r, http.StatusOK, p.session.User())
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
