package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/telemetry"
)

// RefreshTokens renews the token set through the provider. Concurrent callers
// share a single provider call. Any failure signs the session out and is
// returned wrapped in ErrRefreshFailed.
func (m *Manager) RefreshTokens(ctx context.Context) error {
	ch := m.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return nil, m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	current, ok := m.store.Read(ctx)
	if !ok {
		slogctx.Debug(ctx, "Skipping token refresh without a session")
		return errors.Join(ErrRefreshFailed, ErrNoSession)
	}

	if current.RefreshToken == "" && !m.cfg.ProviderManagesRefreshInternally {
		return m.failRefresh(ctx, ErrNoRefreshToken)
	}

	slogctx.Info(ctx, "Refreshing tokens")

	tokens, err := m.provider.Refresh(ctx, current)
	if err != nil {
		return m.failRefresh(ctx, err)
	}

	if tokens.AccessToken == "" || tokens.IDToken == "" {
		return m.failRefresh(ctx, ErrNoTokensInSession)
	}

	if err := m.store.Write(ctx, tokens); err != nil {
		return m.failRefresh(ctx, err)
	}

	telemetry.RecordRefresh(ctx, true)

	user, err := m.userFor(ctx, tokens)
	if err != nil {
		slogctx.Warn(ctx, "Tokens refreshed but the user could not be loaded", "error", err)
		return nil
	}

	m.publish(&user)
	slogctx.Info(ctx, "Tokens refreshed", "expires_at", tokens.Expiry())

	return nil
}

func (m *Manager) failRefresh(ctx context.Context, cause error) error {
	telemetry.RecordRefresh(ctx, false)
	slogctx.Error(ctx, "Token refresh failed, signing out", "error", cause)

	m.Logout(ctx)

	return fmt.Errorf("%w: %w", ErrRefreshFailed, cause)
}

// StartPeriodicRefreshCheck refreshes the tokens every RefreshCheckInterval once
// they are about to expire. A running check is replaced. The returned function
// stops the check and waits for it to exit.
func (m *Manager) StartPeriodicRefreshCheck(ctx context.Context) (stop func()) {
	m.periodicMu.Lock()
	defer m.periodicMu.Unlock()

	if m.stopPeriodic != nil {
		m.stopPeriodic()
	}

	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Go(func() {
		m.refreshLoop(ctx, m.cfg.RefreshCheckInterval)
	})

	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
	m.stopPeriodic = stop

	return stop
}

// StopPeriodicRefreshCheck stops the running check, if any.
func (m *Manager) StopPeriodicRefreshCheck() {
	m.periodicMu.Lock()
	defer m.periodicMu.Unlock()

	if m.stopPeriodic != nil {
		m.stopPeriodic()
		m.stopPeriodic = nil
	}
}

func (m *Manager) refreshLoop(ctx context.Context, interval time.Duration) {
	c := time.NewTicker(interval)
	defer c.Stop()

	for {
		select {
		case <-c.C:
			m.checkRefresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) checkRefresh(ctx context.Context) {
	if _, ok := m.store.Read(ctx); !ok {
		slogctx.Debug(ctx, "No session, skipping the refresh check")
		return
	}

	if !m.ShouldRefreshTokens(ctx) {
		return
	}

	if err := m.RefreshTokens(ctx); err != nil {
		slogctx.Error(ctx, "Periodic token refresh failed", "error", err)
	}
}
