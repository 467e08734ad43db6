// Package oidc implements the identity provider of a session against any
// OpenID Connect issuer using the authorization code flow with PKCE.
package oidc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/pkce"
	"github.com/openkcm/session-client/pkg/session"
	"github.com/openkcm/session-client/pkg/tokenstore"
)

const (
	wkocPrefix = "wkoc_"

	DefaultStateTTL          = 10 * time.Minute
	DefaultDiscoveryCacheTTL = time.Hour
)

var DefaultScopes = []string{gooidc.ScopeOpenID, "email", "profile"}

var _ session.Provider = (*Client)(nil)

type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// AuthParams are added to the authorization request.
	AuthParams map[string]string
	// StateTTL bounds the time between BeginAuthorization and the callback.
	StateTTL          time.Duration
	DiscoveryCacheTTL time.Duration
	// ManagesRefreshInternally keeps the refresh token out of the token set.
	ManagesRefreshInternally bool
	// UseUserInfo fills claims missing from the ID token from the userinfo endpoint.
	UseUserInfo bool
	// Namespace prefixes the keys the client keeps in the storage.
	Namespace string
}

type Client struct {
	cfg        Config
	storage    tokenstore.Storage
	keys       keys
	pkce       pkce.Source
	cache      *cache.Cache
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Client)

// WithHTTPClient sets the client used for every call to the provider.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithCache shares a discovery cache between clients.
func WithCache(discoveryCache *cache.Cache) Option {
	return func(c *Client) {
		c.cache = discoveryCache
	}
}

// NewClient returns a client for the issuer in cfg. The pending authorization
// and the refresh token held by the client are kept in storage.
func NewClient(cfg Config, storage tokenstore.Storage, opts ...Option) *Client {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}

	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}

	if cfg.DiscoveryCacheTTL <= 0 {
		cfg.DiscoveryCacheTTL = DefaultDiscoveryCacheTTL
	}

	c := &Client{
		cfg:     cfg,
		storage: storage,
		keys:    namespacedKeys(cfg.Namespace),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.cache == nil {
		c.cache = cache.New(cfg.DiscoveryCacheTTL, 2*cfg.DiscoveryCacheTTL)
	}

	return c
}

type keys struct {
	State        string
	Verifier     string
	StateExpires string
	RefreshToken string
}

func namespacedKeys(namespace string) keys {
	if namespace == "" {
		namespace = tokenstore.DefaultNamespace
	}

	return keys{
		State:        namespace + "_pkce_state",
		Verifier:     namespace + "_pkce_verifier",
		StateExpires: namespace + "_pkce_expires_at",
		RefreshToken: namespace + "_provider_refresh_token",
	}
}

type discovery struct {
	provider *gooidc.Provider
	config   Configuration
}

func (c *Client) discover(ctx context.Context) (*discovery, error) {
	// first check the cache for a recent WKOC configuration for this issuer
	cacheKey := wkocPrefix + c.cfg.IssuerURL
	if cached, ok := c.cache.Get(cacheKey); ok {
		//nolint:forcetypeassert
		return cached.(*discovery), nil
	}

	provider, err := gooidc.NewProvider(c.clientContext(ctx), c.cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: discovering %s: %w", session.ErrProviderUnavailable, c.cfg.IssuerURL, err)
	}

	var config Configuration
	if err := provider.Claims(&config); err != nil {
		return nil, fmt.Errorf("decoding provider metadata: %w", err)
	}

	if !config.SupportsChallengeMethod(pkce.MethodS256) {
		slogctx.Warn(ctx, "Provider does not advertise the S256 code challenge method", "issuer", c.cfg.IssuerURL)
	}

	d := &discovery{provider: provider, config: config}
	c.cache.Set(cacheKey, d, cache.DefaultExpiration)

	return d, nil
}

func (c *Client) oauth2Config(d *discovery) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURL,
		Endpoint:     d.provider.Endpoint(),
		Scopes:       c.cfg.Scopes,
	}
}

func (c *Client) verifier(d *discovery, skipExpiry bool) *gooidc.IDTokenVerifier {
	return d.provider.Verifier(&gooidc.Config{
		ClientID:        c.cfg.ClientID,
		SkipExpiryCheck: skipExpiry,
		Now:             c.now,
	})
}

// clientContext carries the configured HTTP client to go-oidc and oauth2.
func (c *Client) clientContext(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}

	return gooidc.ClientContext(ctx, c.httpClient)
}
