package sessionmock

import (
	"context"
	"sync"

	"github.com/openkcm/session-client/pkg/session"
	"github.com/openkcm/session-client/pkg/tokenstore"
)

var _ = session.Provider(&Provider{})
var _ = session.Navigator(&Navigator{})

// Calls counts the invocations of each Provider method.
type Calls struct {
	Begin, Complete, Refresh, Identity, EndSession int
}

type Provider struct {
	mu sync.Mutex

	authURL   string
	tokens    tokenstore.TokenSet
	refreshed tokenstore.TokenSet
	claims    session.Claims

	beginErr, completeErr, refreshErr, identityErr, endSessionErr error

	refreshHook func(current tokenstore.TokenSet)
	calls       Calls
}

type ProviderOption func(*Provider)

func WithAuthURL(u string) ProviderOption {
	return func(p *Provider) {
		p.authURL = u
	}
}

// WithTokens sets the token set returned by CompleteAuthorization.
func WithTokens(tokens tokenstore.TokenSet) ProviderOption {
	return func(p *Provider) {
		p.tokens = tokens
	}
}

// WithRefreshedTokens sets the token set returned by Refresh.
func WithRefreshedTokens(tokens tokenstore.TokenSet) ProviderOption {
	return func(p *Provider) {
		p.refreshed = tokens
	}
}

func WithClaims(claims session.Claims) ProviderOption {
	return func(p *Provider) {
		p.claims = claims
	}
}

func WithBeginError(err error) ProviderOption {
	return func(p *Provider) {
		p.beginErr = err
	}
}

func WithCompleteError(err error) ProviderOption {
	return func(p *Provider) {
		p.completeErr = err
	}
}

func WithRefreshError(err error) ProviderOption {
	return func(p *Provider) {
		p.refreshErr = err
	}
}

func WithIdentityError(err error) ProviderOption {
	return func(p *Provider) {
		p.identityErr = err
	}
}

func WithEndSessionError(err error) ProviderOption {
	return func(p *Provider) {
		p.endSessionErr = err
	}
}

// WithRefreshHook runs hook inside Refresh before it returns.
func WithRefreshHook(hook func(current tokenstore.TokenSet)) ProviderOption {
	return func(p *Provider) {
		p.refreshHook = hook
	}
}

func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		authURL: "https://idp.example.com/oauth2/authorize",
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Provider) Calls() Calls {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls
}

func (p *Provider) BeginAuthorization(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls.Begin++
	if p.beginErr != nil {
		return "", p.beginErr
	}

	return p.authURL, nil
}

func (p *Provider) CompleteAuthorization(_ context.Context, _, _ string) (tokenstore.TokenSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls.Complete++
	if p.completeErr != nil {
		return tokenstore.TokenSet{}, p.completeErr
	}

	return p.tokens, nil
}

func (p *Provider) Refresh(_ context.Context, current tokenstore.TokenSet) (tokenstore.TokenSet, error) {
	p.mu.Lock()
	p.calls.Refresh++
	hook := p.refreshHook
	p.mu.Unlock()

	if hook != nil {
		hook(current)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refreshErr != nil {
		return tokenstore.TokenSet{}, p.refreshErr
	}

	return p.refreshed, nil
}

func (p *Provider) Identity(_ context.Context, _ tokenstore.TokenSet) (session.Claims, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls.Identity++
	if p.identityErr != nil {
		return session.Claims{}, p.identityErr
	}

	return p.claims, nil
}

func (p *Provider) EndSession(_ context.Context, _ tokenstore.TokenSet) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls.EndSession++

	return p.endSessionErr
}

// Navigator records every location it is sent to.
type Navigator struct {
	mu        sync.Mutex
	locations []string
	err       error
}

func NewNavigator(err error) *Navigator {
	return &Navigator{err: err}
}

func (n *Navigator) Navigate(_ context.Context, location string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.locations = append(n.locations, location)

	return n.err
}

func (n *Navigator) Locations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.locations...)
}
