package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/pkg/session"
	"github.com/openkcm/session-client/pkg/tokenstore"
)

var errNoExpiry = errors.New("token response carries no expiry")

var signatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.EdDSA,
}

// Refresh redeems the refresh token for a new token set. The ID token of
// current is kept when the provider does not issue a new one.
func (c *Client) Refresh(ctx context.Context, current tokenstore.TokenSet) (tokenstore.TokenSet, error) {
	refreshToken := current.RefreshToken
	if c.cfg.ManagesRefreshInternally {
		held, err := c.heldRefreshToken(ctx)
		if err != nil {
			return tokenstore.TokenSet{}, err
		}

		refreshToken = held
	}

	if refreshToken == "" {
		return tokenstore.TokenSet{}, session.ErrNoRefreshToken
	}

	d, err := c.discover(ctx)
	if err != nil {
		return tokenstore.TokenSet{}, err
	}

	// a token without access token is never valid, so the source always refreshes
	source := c.oauth2Config(d).TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})

	token, err := source.Token()
	if err != nil {
		return tokenstore.TokenSet{}, fmt.Errorf("refreshing tokens: %w", tokenError(err))
	}

	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	return c.tokenSet(ctx, d, token, current.IDToken)
}

// tokenSet converts a token response. previousIDToken stands in for a
// missing id_token on refresh.
func (c *Client) tokenSet(ctx context.Context, d *discovery, token *oauth2.Token, previousIDToken string) (tokenstore.TokenSet, error) {
	rawIDToken, _ := token.Extra("id_token").(string)
	if token.AccessToken == "" && rawIDToken == "" {
		slogctx.Warn(ctx, "Token response carries no tokens")
		return tokenstore.TokenSet{}, nil
	}

	if rawIDToken != "" {
		if _, err := c.verifier(d, false).Verify(ctx, rawIDToken); err != nil {
			return tokenstore.TokenSet{}, fmt.Errorf("verifying id token: %w", err)
		}
	} else {
		rawIDToken = previousIDToken
	}

	expiresAt, err := expiresAt(token, rawIDToken)
	if err != nil {
		return tokenstore.TokenSet{}, err
	}

	tokens := tokenstore.TokenSet{
		AccessToken:  token.AccessToken,
		IDToken:      rawIDToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}

	if c.cfg.ManagesRefreshInternally {
		if err := c.holdRefreshToken(ctx, tokens.RefreshToken); err != nil {
			return tokenstore.TokenSet{}, err
		}

		tokens.RefreshToken = ""
	}

	return tokens, nil
}

// expiresAt reads the exp claim of the access token, falling back to the ID
// token when the access token is opaque. expires_in is never used.
func expiresAt(token *oauth2.Token, rawIDToken string) (int64, error) {
	for _, raw := range []string{token.AccessToken, rawIDToken} {
		if exp, ok := unverifiedExpiry(raw); ok {
			return tokenstore.ExpiresAtFromClaim(exp), nil
		}
	}

	return 0, errNoExpiry
}

// unverifiedExpiry returns the exp claim of a JWT without checking its signature.
func unverifiedExpiry(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}

	token, err := jwt.ParseSigned(raw, signatureAlgorithms)
	if err != nil {
		return 0, false
	}

	var claims jwt.Claims
	if err := token.UnsafeClaimsWithoutVerification(&claims); err != nil || claims.Expiry == nil {
		return 0, false
	}

	return claims.Expiry.Time().Unix(), true
}

// tokenError maps an OAuth2 error response to session.ProviderError and
// transport failures to session.ErrProviderUnavailable.
func tokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode != "" {
			return &session.ProviderError{
				Code:        retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
			}
		}

		if retrieveErr.Response != nil {
			return fmt.Errorf("%w: token endpoint returned %s", session.ErrProviderUnavailable, retrieveErr.Response.Status)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%w: %w", session.ErrProviderUnavailable, err)
}

func (c *Client) heldRefreshToken(ctx context.Context) (string, error) {
	values, err := c.storage.Load(ctx, c.keys.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("loading refresh token: %w", err)
	}

	return values[c.keys.RefreshToken], nil
}

func (c *Client) holdRefreshToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	if err := c.storage.Apply(ctx, map[string]string{c.keys.RefreshToken: refreshToken}, nil); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}

	return nil
}
