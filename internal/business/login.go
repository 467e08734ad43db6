package business

import (
	"context"
	"fmt"
	"io"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/business/server"
	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/pkg/session"
)

// LoginMain signs in through the browser, receiving the callback on the
// loopback redirect URI.
func LoginMain(ctx context.Context, cfg *config.Config, out io.Writer) error {
	manager, closeFn, err := initSessionManager(ctx, cfg, terminalNavigator{out: out})
	if err != nil {
		return fmt.Errorf("initialising the session manager: %w", err)
	}
	defer closeFn()

	if manager.IsAuthenticated(ctx) {
		return printUser(ctx, manager, out)
	}

	callbacks, err := server.ListenCallback(ctx, cfg.Provider.RedirectURI)
	if err != nil {
		return fmt.Errorf("starting the callback listener: %w", err)
	}

	defer func() {
		if err := callbacks.Shutdown(ctx, cfg.Callback.ShutdownTimeout); err != nil {
			slogctx.Error(ctx, "Failed to stop the callback listener", "error", err)
		}
	}()

	if err := login(ctx, manager, callbacks, cfg.Callback.Timeout); err != nil {
		return err
	}

	return printUser(ctx, manager, out)
}

// login redirects to the provider and completes the first callback received.
func login(ctx context.Context, manager *session.Manager, callbacks *server.CallbackServer, timeout time.Duration) error {
	if err := manager.Login(ctx); err != nil {
		return fmt.Errorf("starting sign in: %w", err)
	}

	cb, err := callbacks.Next(ctx, timeout)
	if err != nil {
		return fmt.Errorf("waiting for the callback: %w", err)
	}

	err = manager.HandleAuthCallback(ctx, cb.URL)
	cb.Complete(err)
	if err != nil {
		manager.RecoverFromCallbackFailure(ctx, err)
		return fmt.Errorf("completing sign in: %w", err)
	}

	return nil
}
