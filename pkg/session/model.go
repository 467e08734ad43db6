package session

import (
	"context"
	"time"

	"github.com/openkcm/session-client/pkg/tokenstore"
)

const unknownIdentity = "unknown"

// State is the derived authentication state. It is never persisted.
type State int

const (
	Unauthenticated State = iota
	PendingCallback
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case PendingCallback:
		return "pending_callback"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// Claims is the identity claim set read from the ID token or the userinfo endpoint.
// Every field is optional.
type Claims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	PreferredUsername string `json:"preferred_username"`
}

// DisplayName returns the first of name, given_name and preferred_username that is set.
func (c Claims) DisplayName() string {
	for _, name := range []string{c.Name, c.GivenName, c.PreferredUsername} {
		if name != "" {
			return name
		}
	}

	return ""
}

// User is the signed in identity, rebuilt whenever the token set changes.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	TokenExpiry time.Time `json:"tokenExpiry"`
}

func newUser(claims Claims, tokens tokenstore.TokenSet) User {
	user := User{
		ID:          claims.Subject,
		Email:       claims.Email,
		Name:        claims.DisplayName(),
		TokenExpiry: tokens.Expiry(),
	}

	if user.ID == "" {
		user.ID = unknownIdentity
	}

	if user.Email == "" {
		user.Email = unknownIdentity
	}

	return user
}

// Provider is the identity provider capability set used by the Manager.
type Provider interface {
	// BeginAuthorization prepares a PKCE authorization request and returns the URL to redirect to.
	BeginAuthorization(ctx context.Context) (string, error)
	// CompleteAuthorization exchanges the callback parameters for a token set.
	// A zero token set means the provider returned no usable tokens.
	CompleteAuthorization(ctx context.Context, code, state string) (tokenstore.TokenSet, error)
	// Refresh returns a renewed token set for the current one.
	Refresh(ctx context.Context, current tokenstore.TokenSet) (tokenstore.TokenSet, error)
	// Identity returns the identity claims of the token set.
	Identity(ctx context.Context, tokens tokenstore.TokenSet) (Claims, error)
	// EndSession signs out at the provider.
	EndSession(ctx context.Context, tokens tokenstore.TokenSet) error
}

// Navigator moves the host to another location, either a view of the
// application or an external URL.
type Navigator interface {
	Navigate(ctx context.Context, location string) error
}

type NavigatorFunc func(ctx context.Context, location string) error

func (f NavigatorFunc) Navigate(ctx context.Context, location string) error {
	return f(ctx, location)
}
