package auth

import (
	"context"
	"time"

	apperrors "github.com/nijaru/videoverse/errors"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// refreshTimeout bounds a shared refresh once it is detached from the
// request that started it.
const refreshTimeout = 30 * time.Second

// Tokens resolves fresh access tokens for stored sessions, replacing the
// stored session whenever the token is refreshed.
type Tokens struct {
	store   SessionStore
	manager *Manager
	group   singleflight.Group
}

func NewTokens(store SessionStore, manager *Manager) *Tokens {
	return &Tokens{store: store, manager: manager}
}

// AccessToken returns a token valid for at least the refresh margin.
// Concurrent refreshes of the same session share one provider call.
func (t *Tokens) AccessToken(ctx context.Context, sessionID string) (string, error) {
	const op = "Tokens.AccessToken"

	ch := t.group.DoChan(sessionID, func() (interface{}, error) {
		s, ok := t.store.Get(sessionID)
		if !ok {
			return "", apperrors.Unauthenticated(op, ErrLoginRequired, "Please sign in")
		}

		// Other callers may be waiting on this refresh.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		fresh, err := t.manager.FreshToken(rctx, s)
		if err != nil {
			if errors.Is(err, ErrReauthFailed) {
				t.store.Delete(sessionID)
			}
			return "", err
		}
		if fresh.AccessToken != s.AccessToken {
			t.store.Save(fresh)
		}
		return fresh.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// For binds a session id, yielding a per-request token source.
func (t *Tokens) For(sessionID string) SessionTokenSource {
	return SessionTokenSource{tokens: t, sessionID: sessionID}
}

type SessionTokenSource struct {
	tokens    *Tokens
	sessionID string
}

func (s SessionTokenSource) AccessToken(ctx context.Context) (string, error) {
	return s.tokens.AccessToken(ctx, s.sessionID)
}
