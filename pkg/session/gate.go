package session

import (
	"context"
	"net/http"

	slogctx "github.com/veqryn/slog-context"
)

// Authenticator is the part of the Manager a RouteGate depends on.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
	Login(ctx context.Context) error
}

// RouteGate decides whether a protected view may be entered.
type RouteGate struct {
	sessions Authenticator
}

func NewRouteGate(sessions Authenticator) *RouteGate {
	return &RouteGate{sessions: sessions}
}

// Allow admits authenticated sessions. Otherwise it starts a login and denies.
func (g *RouteGate) Allow(ctx context.Context) bool {
	if g.sessions.IsAuthenticated(ctx) {
		return true
	}

	if err := g.sessions.Login(ctx); err != nil {
		slogctx.Error(ctx, "Failed to start login", "error", err)
	}

	return false
}

// Middleware guards next with Allow. Denied requests get 401.
func (g *RouteGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Allow(r.Context()) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
