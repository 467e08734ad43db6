// Package tokenstore persists the current token set and tracks its expiry.
// A token set is either fully present or fully absent, and reads fail closed.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

// SkewBuffer is subtracted from the token expiry when evaluating IsExpired.
const SkewBuffer = 5 * time.Minute

const DefaultNamespace = "oidc"

var ErrIncompleteTokenSet = errors.New("incomplete token set")

// Storage is the durable key/value collaborator of a Store.
type Storage interface {
	// Load returns the values for the given keys. Missing keys are absent from the map.
	Load(ctx context.Context, keys ...string) (map[string]string, error)
	// Apply sets and removes keys atomically.
	Apply(ctx context.Context, set map[string]string, remove []string) error
}

type TokenSet struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiresAt is the access token expiry in epoch milliseconds.
	ExpiresAt int64 `json:"expires_at"`
}

// Expiry returns ExpiresAt as a time.
func (t TokenSet) Expiry() time.Time {
	return time.UnixMilli(t.ExpiresAt)
}

func (t TokenSet) IsZero() bool {
	return t.AccessToken == "" && t.IDToken == "" && t.RefreshToken == "" && t.ExpiresAt == 0
}

// ExpiresAtFromClaim converts an exp claim in seconds to epoch milliseconds.
func ExpiresAtFromClaim(exp int64) int64 {
	return exp * 1000
}

type Keys struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresAt    string
}

// NamespacedKeys returns the storage keys for the given namespace.
func NamespacedKeys(namespace string) Keys {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return Keys{
		AccessToken:  namespace + "_access_token",
		IDToken:      namespace + "_id_token",
		RefreshToken: namespace + "_refresh_token",
		ExpiresAt:    namespace + "_expires_at",
	}
}

func (k Keys) all() []string {
	return []string{k.AccessToken, k.IDToken, k.RefreshToken, k.ExpiresAt}
}

type Store struct {
	storage Storage
	keys    Keys
	now     func() time.Time
}

type Option func(*Store)

func WithNamespace(namespace string) Option {
	return func(s *Store) {
		s.keys = NamespacedKeys(namespace)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		keys:    NamespacedKeys(DefaultNamespace),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Keys returns the storage keys used by the store.
func (s *Store) Keys() Keys {
	return s.keys
}

// Write persists the token set in a single storage update.
func (s *Store) Write(ctx context.Context, tokens TokenSet) error {
	if tokens.AccessToken == "" || tokens.IDToken == "" || tokens.ExpiresAt <= 0 {
		return ErrIncompleteTokenSet
	}

	set := map[string]string{
		s.keys.AccessToken: tokens.AccessToken,
		s.keys.IDToken:     tokens.IDToken,
		s.keys.ExpiresAt:   strconv.FormatInt(tokens.ExpiresAt, 10),
	}

	var remove []string
	if tokens.RefreshToken != "" {
		set[s.keys.RefreshToken] = tokens.RefreshToken
	} else {
		remove = append(remove, s.keys.RefreshToken)
	}

	if err := s.storage.Apply(ctx, set, remove); err != nil {
		return fmt.Errorf("writing token set: %w", err)
	}

	return nil
}

// Read returns the stored token set. Any missing required field or storage
// failure reports the set as absent.
func (s *Store) Read(ctx context.Context) (TokenSet, bool) {
	values, err := s.storage.Load(ctx, s.keys.all()...)
	if err != nil {
		slogctx.Error(ctx, "Failed to read token set", "error", err)
		return TokenSet{}, false
	}

	accessToken := values[s.keys.AccessToken]
	idToken := values[s.keys.IDToken]
	rawExpiresAt := values[s.keys.ExpiresAt]
	if accessToken == "" || idToken == "" || rawExpiresAt == "" {
		return TokenSet{}, false
	}

	expiresAt, err := strconv.ParseInt(rawExpiresAt, 10, 64)
	if err != nil {
		slogctx.Warn(ctx, "Ignoring token set with malformed expiry", "value", rawExpiresAt)
		return TokenSet{}, false
	}

	return TokenSet{
		AccessToken:  accessToken,
		IDToken:      idToken,
		RefreshToken: values[s.keys.RefreshToken],
		ExpiresAt:    expiresAt,
	}, true
}

// IsExpired reports whether no token set is present or the access token
// expires within SkewBuffer.
func (s *Store) IsExpired(ctx context.Context) bool {
	tokens, ok := s.Read(ctx)
	if !ok {
		return true
	}

	return s.expired(tokens)
}

func (s *Store) expired(tokens TokenSet) bool {
	return s.now().UnixMilli() >= tokens.ExpiresAt-SkewBuffer.Milliseconds()
}

func (s *Store) IsAuthenticated(ctx context.Context) bool {
	_, ok := s.ReadValid(ctx)
	return ok
}

// ReadValid returns the stored token set only if it is present and not expired.
func (s *Store) ReadValid(ctx context.Context) (TokenSet, bool) {
	tokens, ok := s.Read(ctx)
	if !ok || s.expired(tokens) {
		return TokenSet{}, false
	}

	return tokens, true
}

// Clear removes all token keys. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.Apply(ctx, nil, s.keys.all()); err != nil {
		return fmt.Errorf("clearing token set: %w", err)
	}

	return nil
}
