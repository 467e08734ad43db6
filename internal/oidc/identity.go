package oidc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/pkg/session"
	"github.com/openkcm/session-client/pkg/tokenstore"
)

// Identity verifies the ID token signature and returns its claims. The token
// may be expired since the identity outlives the access token.
func (c *Client) Identity(ctx context.Context, tokens tokenstore.TokenSet) (session.Claims, error) {
	if tokens.IDToken == "" {
		return session.Claims{}, session.ErrNoIdentity
	}

	d, err := c.discover(ctx)
	if err != nil {
		return session.Claims{}, err
	}

	idToken, err := c.verifier(d, true).Verify(ctx, tokens.IDToken)
	if err != nil {
		return session.Claims{}, fmt.Errorf("verifying id token: %w", err)
	}

	var claims session.Claims
	if err := idToken.Claims(&claims); err != nil {
		return session.Claims{}, fmt.Errorf("getting JWT claims: %w", err)
	}

	if !c.cfg.UseUserInfo || tokens.AccessToken == "" || complete(claims) {
		return claims, nil
	}

	info, err := d.provider.UserInfo(c.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tokens.AccessToken}))
	if err != nil {
		slogctx.Warn(ctx, "Failed to load userinfo, using the ID token claims", "error", err)
		return claims, nil
	}

	var extra session.Claims
	if err := info.Claims(&extra); err != nil {
		slogctx.Warn(ctx, "Failed to decode userinfo", "error", err)
		return claims, nil
	}

	// userinfo for another subject must be ignored
	if extra.Subject != "" && extra.Subject != claims.Subject {
		slogctx.Warn(ctx, "Userinfo subject does not match the ID token")
		return claims, nil
	}

	return merge(claims, extra), nil
}

// EndSession drops the state the client keeps and revokes the refresh token
// when the provider has a revocation endpoint.
func (c *Client) EndSession(ctx context.Context, tokens tokenstore.TokenSet) error {
	refreshToken := tokens.RefreshToken
	if c.cfg.ManagesRefreshInternally {
		held, err := c.heldRefreshToken(ctx)
		if err != nil {
			slogctx.Warn(ctx, "Failed to load the held refresh token", "error", err)
		}

		refreshToken = held
	}

	err := c.storage.Apply(ctx, nil, []string{c.keys.State, c.keys.Verifier, c.keys.StateExpires, c.keys.RefreshToken})
	if err != nil {
		return fmt.Errorf("deleting provider state: %w", err)
	}

	if refreshToken == "" {
		return nil
	}

	d, err := c.discover(ctx)
	if err != nil {
		return err
	}

	if d.config.RevocationEndpoint == "" {
		slogctx.Debug(ctx, "Provider has no revocation endpoint")
		return nil
	}

	return c.revoke(ctx, d.config.RevocationEndpoint, refreshToken)
}

func (c *Client) revoke(ctx context.Context, endpoint, refreshToken string) error {
	data := url.Values{}
	data.Set("token", refreshToken)
	data.Set("token_type_hint", "refresh_token")
	if c.cfg.ClientSecret == "" {
		data.Set("client_id", c.cfg.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.cfg.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(c.cfg.ClientID), url.QueryEscape(c.cfg.ClientSecret))
	}

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: revoking token: %w", session.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token revocation failed with status: %d", resp.StatusCode)
	}

	slogctx.Info(ctx, "Revoked the refresh token")

	return nil
}

func complete(claims session.Claims) bool {
	return claims.Subject != "" && claims.Email != "" && claims.DisplayName() != ""
}

func merge(claims, extra session.Claims) session.Claims {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}

	fill(&claims.Subject, extra.Subject)
	fill(&claims.Email, extra.Email)
	fill(&claims.Name, extra.Name)
	fill(&claims.GivenName, extra.GivenName)
	fill(&claims.PreferredUsername, extra.PreferredUsername)

	return claims
}
