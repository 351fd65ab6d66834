package oilfox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// TokenReuseWindow is how long a refresh token is trusted without asking the
// cloud for a new pair.
const TokenReuseWindow = 15 * time.Minute

// Session is the token pair shared by every device of one account.
// Both tokens are set or cleared together.
type Session struct {
	AccessToken  string
	RefreshToken string
	ObtainedAt   time.Time
}

func (s *Session) set(t Tokens, now time.Time) {
	s.AccessToken = t.AccessToken
	s.RefreshToken = t.RefreshToken
	s.ObtainedAt = now
}

func (s *Session) clear() {
	s.AccessToken = ""
	s.RefreshToken = ""
	s.ObtainedAt = time.Time{}
}

// TokenAPI is the part of the cloud client used for authentication.
type TokenAPI interface {
	Login(ctx context.Context, email, password string) (Tokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (Tokens, error)
}

// SessionSnapshot describes the session without exposing the tokens.
type SessionSnapshot struct {
	Authenticated bool          `json:"authenticated"`
	TokenAge      time.Duration `json:"token_age_ns"`
	ObtainedAt    time.Time     `json:"obtained_at,omitempty"`
}

// AuthResult reports which path EnsureAuthenticated took.
type AuthResult string

const (
	AuthReused    AuthResult = "reused"
	AuthRefreshed AuthResult = "refreshed"
	AuthLoggedIn  AuthResult = "logged_in"
	AuthFailed    AuthResult = "failed"
)

// Authenticator owns the account session and keeps it valid.
//
// Thread Safety: All methods are safe for concurrent use. Requests read the
// session through Use. Token requests are serialised by authMu; mu only
// guards the session, so Snapshot never waits on the network.
type Authenticator struct {
	api      TokenAPI
	email    string
	password string
	now      func() time.Time

	authMu sync.Mutex

	mu      sync.Mutex
	session Session
}

// NewAuthenticator creates an authenticator for one account.
func NewAuthenticator(api TokenAPI, email, password string) *Authenticator {
	return &Authenticator{
		api:      api,
		email:    email,
		password: password,
		now:      time.Now,
	}
}

// EnsureAuthenticated makes sure the session holds a usable token pair.
//
// A refresh token younger than TokenReuseWindow is reused without a network
// call. An older one is exchanged at the token endpoint; if that fails both
// tokens are dropped and a full login is attempted. Without a refresh token
// the login is attempted directly.
//
// Returns:
//   - AuthResult: The path taken, for metrics
//   - error: Wraps ErrAuth, ErrNotFound, ErrRateLimited or ErrCommunication
func (a *Authenticator) EnsureAuthenticated(ctx context.Context) (AuthResult, error) {
	a.authMu.Lock()
	defer a.authMu.Unlock()

	a.mu.Lock()
	current := a.session
	a.mu.Unlock()

	if current.RefreshToken != "" {
		if a.now().Sub(current.ObtainedAt) < TokenReuseWindow {
			return AuthReused, nil
		}

		tokens, err := a.api.RefreshToken(ctx, current.RefreshToken)
		if err == nil {
			a.store(tokens)
			return AuthRefreshed, nil
		}
		a.Invalidate()
		if errors.Is(err, context.Canceled) {
			return AuthFailed, err
		}
	}

	tokens, err := a.api.Login(ctx, a.email, a.password)
	if err != nil {
		a.Invalidate()
		return AuthFailed, err
	}
	a.store(tokens)
	return AuthLoggedIn, nil
}

func (a *Authenticator) store(t Tokens) {
	a.mu.Lock()
	a.session.set(t, a.now())
	a.mu.Unlock()
}

// Use calls fn with a copy of the current session. No lock is held during fn.
func (a *Authenticator) Use(fn func(s *Session) error) error {
	a.mu.Lock()
	s := a.session
	a.mu.Unlock()
	return fn(&s)
}

// Invalidate drops both tokens, forcing a login on the next cycle.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	a.session.clear()
	a.mu.Unlock()
}

// Snapshot returns the session state without the tokens.
func (a *Authenticator) Snapshot() SessionSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session.AccessToken == "" {
		return SessionSnapshot{}
	}
	return SessionSnapshot{
		Authenticated: true,
		TokenAge:      a.now().Sub(a.session.ObtainedAt),
		ObtainedAt:    a.session.ObtainedAt,
	}
}

// describeAuthError turns an authentication failure into the status message
// shown on the bridge.
func describeAuthError(err error, email string) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "password invalid"
	case errors.Is(err, ErrNotFound):
		return fmt.Sprintf("user %s not valid", email)
	case errors.Is(err, ErrRateLimited):
		return "Too Many Requests"
	}
	if code := statusCode(err); code != 0 {
		return fmt.Sprintf("response code %d", code)
	}
	return err.Error()
}
