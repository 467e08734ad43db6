package business

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/pkg/session"
)

// LogoutMain ends the session locally and at the provider.
func LogoutMain(ctx context.Context, cfg *config.Config, out io.Writer) error {
	manager, closeFn, err := initSessionManager(ctx, cfg, terminalNavigator{out: out})
	if err != nil {
		return fmt.Errorf("initialising the session manager: %w", err)
	}
	defer closeFn()

	manager.Logout(ctx)

	_, err = fmt.Fprintln(out, "Signed out.")

	return err
}

// WhoAmIMain prints the signed in user as JSON.
func WhoAmIMain(ctx context.Context, cfg *config.Config, out io.Writer) error {
	manager, closeFn, err := initSessionManager(ctx, cfg, terminalNavigator{out: out})
	if err != nil {
		return fmt.Errorf("initialising the session manager: %w", err)
	}
	defer closeFn()

	return printUser(ctx, manager, out)
}

// RefreshMain renews the token set now.
func RefreshMain(ctx context.Context, cfg *config.Config, out io.Writer) error {
	manager, closeFn, err := initSessionManager(ctx, cfg, terminalNavigator{out: out})
	if err != nil {
		return fmt.Errorf("initialising the session manager: %w", err)
	}
	defer closeFn()

	if err := manager.RefreshTokens(ctx); err != nil {
		return fmt.Errorf("refreshing tokens: %w", err)
	}

	return printUser(ctx, manager, out)
}

func printUser(ctx context.Context, manager *session.Manager, out io.Writer) error {
	user, err := manager.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("getting the current user: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(user); err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}

	return nil
}
