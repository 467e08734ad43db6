package oidc

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/tokenstore"
)

type pendingAuthorization struct {
	State    string
	Verifier string
	Expiry   time.Time
}

// BeginAuthorization stores a new pending authorization and returns the
// authorization URL carrying its state and PKCE challenge.
func (c *Client) BeginAuthorization(ctx context.Context) (string, error) {
	d, err := c.discover(ctx)
	if err != nil {
		return "", err
	}

	challenge := c.pkce.PKCE()
	pending := pendingAuthorization{
		State:    c.pkce.State(),
		Verifier: challenge.Verifier,
		Expiry:   c.now().Add(c.cfg.StateTTL),
	}

	if err := c.storePending(ctx, pending); err != nil {
		return "", err
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", challenge.Method),
	}
	for _, name := range slices.Sorted(maps.Keys(c.cfg.AuthParams)) {
		opts = append(opts, oauth2.SetAuthURLParam(name, c.cfg.AuthParams[name]))
	}

	slogctx.Debug(ctx, "Prepared authorization request", "expires_at", pending.Expiry)

	return c.oauth2Config(d).AuthCodeURL(pending.State, opts...), nil
}

// CompleteAuthorization consumes the pending authorization and exchanges the
// code for a token set. A code can be exchanged only once.
func (c *Client) CompleteAuthorization(ctx context.Context, code, state string) (tokenstore.TokenSet, error) {
	pending, err := c.consumePending(ctx)
	if err != nil {
		return tokenstore.TokenSet{}, err
	}

	if pending.State != state {
		return tokenstore.TokenSet{}, serviceerr.ErrStateMismatch
	}

	if c.now().After(pending.Expiry) {
		return tokenstore.TokenSet{}, serviceerr.ErrStateExpired
	}

	d, err := c.discover(ctx)
	if err != nil {
		return tokenstore.TokenSet{}, err
	}

	token, err := c.oauth2Config(d).Exchange(c.clientContext(ctx), code, oauth2.VerifierOption(pending.Verifier))
	if err != nil {
		return tokenstore.TokenSet{}, fmt.Errorf("exchanging code for tokens: %w", tokenError(err))
	}

	slogctx.Info(ctx, "Exchanged the auth code for tokens")

	return c.tokenSet(ctx, d, token, "")
}

func (c *Client) storePending(ctx context.Context, pending pendingAuthorization) error {
	err := c.storage.Apply(ctx, map[string]string{
		c.keys.State:        pending.State,
		c.keys.Verifier:     pending.Verifier,
		c.keys.StateExpires: strconv.FormatInt(pending.Expiry.UnixMilli(), 10),
	}, nil)
	if err != nil {
		return fmt.Errorf("storing state: %w", err)
	}

	return nil
}

func (c *Client) consumePending(ctx context.Context) (pendingAuthorization, error) {
	pendingKeys := []string{c.keys.State, c.keys.Verifier, c.keys.StateExpires}

	values, err := c.storage.Load(ctx, pendingKeys...)
	if err != nil {
		return pendingAuthorization{}, fmt.Errorf("loading state: %w", err)
	}

	if err := c.storage.Apply(ctx, nil, pendingKeys); err != nil {
		return pendingAuthorization{}, fmt.Errorf("deleting state: %w", err)
	}

	state, verifier := values[c.keys.State], values[c.keys.Verifier]
	if state == "" || verifier == "" {
		return pendingAuthorization{}, fmt.Errorf("loading state: %w", serviceerr.ErrNotFound)
	}

	expiresAt, err := strconv.ParseInt(values[c.keys.StateExpires], 10, 64)
	if err != nil {
		return pendingAuthorization{}, fmt.Errorf("parsing state expiry: %w", err)
	}

	return pendingAuthorization{
		State:    state,
		Verifier: verifier,
		Expiry:   time.UnixMilli(expiresAt),
	}, nil
}
