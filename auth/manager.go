package auth

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/nijaru/videoverse/errors"
	"github.com/nijaru/videoverse/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

var (
	ErrLoginRequired = errors.New("auth: login required")
	ErrReauthFailed  = errors.New("auth: re-authentication failed")
)

// defaultTokenLifetime applies when the provider omits an expiry.
const defaultTokenLifetime = time.Hour

// Reauthenticator obtains a new access token for an existing session.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context, s Session) (*oauth2.Token, error)
}

// Manager hands out access tokens that are valid for at least the refresh
// margin, re-authenticating when the cached one is too close to expiry.
type Manager struct {
	reauth    Reauthenticator
	margin    time.Duration
	now       func() time.Time
	onSignOut []func(Session)
	logger    *logrus.Logger
}

type ManagerOption func(*Manager)

// WithSignOut registers a hook run when re-authentication fails.
func WithSignOut(fn func(Session)) ManagerOption {
	return func(m *Manager) {
		m.onSignOut = append(m.onSignOut, fn)
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

func WithManagerLogger(logger *logrus.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(reauth Reauthenticator, margin time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		reauth: reauth,
		margin: margin,
		now:    time.Now,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FreshToken returns s unchanged when its token is still usable, or a copy
// carrying a new token. On failure it returns an empty Session and runs the
// sign-out hooks.
func (m *Manager) FreshToken(ctx context.Context, s Session) (Session, error) {
	const op = "Manager.FreshToken"

	if !s.SignedIn() {
		metrics.TokenRefresh.WithLabelValues("login_required").Inc()
		return Session{}, apperrors.Unauthenticated(op, ErrLoginRequired, "Please sign in")
	}

	now := m.now()
	if s.usable(now, m.margin) {
		metrics.TokenRefresh.WithLabelValues("cached").Inc()
		return s, nil
	}

	logger := m.logger.WithFields(logrus.Fields{
		"operation": op,
		"user_id":   s.UserID,
	})

	tok, err := m.reauth.Reauthenticate(ctx, s)
	if err == nil && (tok == nil || tok.AccessToken == "") {
		err = errors.New("provider returned no access token")
	}
	if err != nil && ctx.Err() != nil {
		// The caller went away; the session itself may still be good.
		metrics.TokenRefresh.WithLabelValues("cancelled").Inc()
		logger.WithError(err).Debug("Re-authentication abandoned")
		return Session{}, errors.Wrap(ctx.Err(), op)
	}
	if err != nil {
		metrics.TokenRefresh.WithLabelValues("failed").Inc()
		logger.WithError(err).Warn("Re-authentication failed, signing out")
		m.signOut(s)
		return Session{}, apperrors.Unauthenticated(op,
			fmt.Errorf("%w: %w", ErrReauthFailed, err),
			"Your session expired, please sign in again")
	}

	refreshed := s
	refreshed.AccessToken = tok.AccessToken
	refreshed.Expiry = tok.Expiry
	if refreshed.Expiry.IsZero() {
		refreshed.Expiry = now.Add(defaultTokenLifetime)
	}
	if tok.RefreshToken != "" {
		refreshed.RefreshToken = tok.RefreshToken
	}

	metrics.TokenRefresh.WithLabelValues("refreshed").Inc()
	logger.WithField("expiry", refreshed.Expiry).Debug("Access token refreshed")
	return refreshed, nil
}

func (m *Manager) signOut(s Session) {
	for _, fn := range m.onSignOut {
		fn(s)
	}
}
