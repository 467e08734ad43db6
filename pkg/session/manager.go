// Package session owns the authentication state machine of a client: login,
// callback completion, refresh and logout. It publishes the signed in user to
// subscribers whenever the session identity changes.
package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/pkg/tokenstore"
)

const (
	DefaultLandingLocation         = "/welcome"
	DefaultSignedOutLocation       = "/"
	DefaultCallbackFailureLocation = "/home"
	DefaultRefreshCheckInterval    = 5 * time.Minute
)

const refreshKey = "refresh"

type Config struct {
	// LandingLocation is the protected view reached after sign in.
	LandingLocation string
	// SignedOutLocation is the view reached after logout.
	SignedOutLocation string
	// CallbackFailureLocation is the view reached when a callback cannot be completed.
	CallbackFailureLocation string
	RefreshCheckInterval    time.Duration
	// ProviderManagesRefreshInternally lets the provider refresh with a credential
	// it holds itself. Without it a token set lacking a refresh token cannot be refreshed.
	ProviderManagesRefreshInternally bool
}

func (c Config) withDefaults() Config {
	if c.LandingLocation == "" {
		c.LandingLocation = DefaultLandingLocation
	}

	if c.SignedOutLocation == "" {
		c.SignedOutLocation = DefaultSignedOutLocation
	}

	if c.CallbackFailureLocation == "" {
		c.CallbackFailureLocation = DefaultCallbackFailureLocation
	}

	if c.RefreshCheckInterval <= 0 {
		c.RefreshCheckInterval = DefaultRefreshCheckInterval
	}

	return c
}

type Manager struct {
	cfg       Config
	store     *tokenstore.Store
	provider  Provider
	navigator Navigator

	refreshGroup singleflight.Group

	mu          sync.Mutex
	subscribers []subscriber
	nextSubID   int
	current     *User
	pending     bool

	periodicMu   sync.Mutex
	stopPeriodic func()
}

func NewManager(cfg Config, store *tokenstore.Store, provider Provider, navigator Navigator) *Manager {
	return &Manager{
		cfg:       cfg.withDefaults(),
		store:     store,
		provider:  provider,
		navigator: navigator,
	}
}

// Initialize publishes the session restored from storage.
func (m *Manager) Initialize(ctx context.Context) {
	if !m.store.IsAuthenticated(ctx) {
		m.publish(nil)
		return
	}

	user, err := m.CurrentUser(ctx)
	if err != nil {
		slogctx.Warn(ctx, "Failed to restore the signed in user", "error", err)
		m.publish(nil)

		return
	}

	m.publish(&user)
}

// Login starts the authorization code flow. When already authenticated it
// navigates to the landing view instead.
func (m *Manager) Login(ctx context.Context) error {
	if m.store.IsAuthenticated(ctx) {
		slogctx.Debug(ctx, "Already authenticated, skipping login")
		return m.navigate(ctx, m.cfg.LandingLocation)
	}

	redirectURL, err := m.provider.BeginAuthorization(ctx)
	if err != nil {
		return fmt.Errorf("beginning authorization: %w", err)
	}

	m.setPending(true)

	slogctx.Info(ctx, "Redirecting to the identity provider")
	return m.navigate(ctx, redirectURL)
}

// IsAuthCallback reports whether u carries both a code and a state parameter.
func IsAuthCallback(u *url.URL) bool {
	if u == nil {
		return false
	}

	q := u.Query()
	return q.Get("code") != "" && q.Get("state") != ""
}

func (m *Manager) IsAuthCallback(u *url.URL) bool {
	return IsAuthCallback(u)
}

// HandleAuthCallback completes the authorization code flow from the callback location.
func (m *Manager) HandleAuthCallback(ctx context.Context, u *url.URL) error {
	if u != nil {
		if code := u.Query().Get("error"); code != "" {
			m.setPending(false)
			return &ProviderError{Code: code, Description: u.Query().Get("error_description")}
		}
	}

	if !IsAuthCallback(u) {
		return ErrNotCallback
	}

	q := u.Query()
	tokens, err := m.provider.CompleteAuthorization(ctx, q.Get("code"), q.Get("state"))
	m.setPending(false)
	if err != nil {
		return fmt.Errorf("completing authorization: %w", err)
	}

	if tokens.AccessToken == "" || tokens.IDToken == "" {
		return ErrNoTokensInSession
	}

	if err := m.store.Write(ctx, tokens); err != nil {
		return fmt.Errorf("storing tokens: %w", err)
	}

	user, err := m.userFor(ctx, tokens)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	m.publish(&user)
	slogctx.Info(ctx, "Signed in", "user_id", user.ID)

	return m.navigate(ctx, m.cfg.LandingLocation)
}

// RecoverFromCallbackFailure sends the host to the callback failure view.
func (m *Manager) RecoverFromCallbackFailure(ctx context.Context, err error) {
	slogctx.Error(ctx, "Failed to complete the authorization callback", "error", err)

	if err := m.navigator.Navigate(ctx, m.cfg.CallbackFailureLocation); err != nil {
		slogctx.Warn(ctx, "Failed to navigate after a callback failure", "error", err)
	}
}

// CurrentUser returns the identity of the valid session.
func (m *Manager) CurrentUser(ctx context.Context) (User, error) {
	tokens, ok := m.store.ReadValid(ctx)
	if !ok {
		return User{}, ErrNoIdentity
	}

	return m.userFor(ctx, tokens)
}

func (m *Manager) userFor(ctx context.Context, tokens tokenstore.TokenSet) (User, error) {
	claims, err := m.provider.Identity(ctx, tokens)
	if err != nil {
		return User{}, fmt.Errorf("getting identity claims: %w", err)
	}

	return newUser(claims, tokens), nil
}

func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	return m.store.IsAuthenticated(ctx)
}

func (m *Manager) ShouldRefreshTokens(ctx context.Context) bool {
	return m.store.IsExpired(ctx)
}

// State derives the current authentication state.
func (m *Manager) State(ctx context.Context) State {
	if _, ok := m.store.Read(ctx); ok {
		if m.store.IsAuthenticated(ctx) {
			return Authenticated
		}

		return Expired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending {
		return PendingCallback
	}

	return Unauthenticated
}

// Logout signs out at the provider and clears the local session. Local state
// is cleared even if the provider sign out fails.
func (m *Manager) Logout(ctx context.Context) {
	tokens, _ := m.store.Read(ctx)

	if err := m.provider.EndSession(ctx, tokens); err != nil {
		slogctx.Warn(ctx, "Provider sign out failed", "error", err)
	}

	if err := m.store.Clear(ctx); err != nil {
		slogctx.Error(ctx, "Failed to clear the token set", "error", err)
	}

	m.setPending(false)
	m.publish(nil)
	slogctx.Info(ctx, "Signed out")

	if err := m.navigator.Navigate(ctx, m.cfg.SignedOutLocation); err != nil {
		slogctx.Warn(ctx, "Failed to navigate after logout", "error", err)
	}
}

// HandleAuthError logs out when err means the session is no longer usable.
func (m *Manager) HandleAuthError(ctx context.Context, err error) {
	if err == nil {
		return
	}

	if !IsCriticalAuthError(err) {
		slogctx.Warn(ctx, "Authentication error", "error", err)
		return
	}

	slogctx.Error(ctx, "Critical authentication error, signing out", "error", err)
	m.Logout(ctx)
}

// AccessToken returns the access token of the session, refreshing it first when
// it is about to expire. It returns an empty token when there is no usable session.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	token, _, err := m.FetchAccessToken(ctx)
	return token, err
}

// FetchAccessToken is AccessToken that also reports whether a refresh was
// attempted to obtain the token.
func (m *Manager) FetchAccessToken(ctx context.Context) (token string, refreshed bool, _ error) {
	if tokens, ok := m.store.ReadValid(ctx); ok {
		return tokens.AccessToken, false, nil
	}

	if _, ok := m.store.Read(ctx); !ok {
		return "", false, nil
	}

	if err := m.RefreshTokens(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", true, ctxErr
		}

		slogctx.Warn(ctx, "No access token available", "error", err)

		return "", true, nil
	}

	tokens, ok := m.store.ReadValid(ctx)
	if !ok {
		return "", true, nil
	}

	return tokens.AccessToken, true, nil
}

func (m *Manager) navigate(ctx context.Context, location string) error {
	if err := m.navigator.Navigate(ctx, location); err != nil {
		return fmt.Errorf("navigating: %w", err)
	}

	return nil
}

func (m *Manager) setPending(pending bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = pending
}
