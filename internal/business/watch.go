package business

import (
	"context"
	"fmt"
	"io"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/pkg/session"
)

// WatchMain keeps the session fresh until ctx is done, logging every change
// of the signed in user.
func WatchMain(ctx context.Context, cfg *config.Config, out io.Writer) error {
	manager, closeFn, err := initSessionManager(ctx, cfg, terminalNavigator{out: out})
	if err != nil {
		return fmt.Errorf("failed to initialise the session manager: %w", err)
	}
	defer closeFn()

	watch(ctx, manager)

	return nil
}

func watch(ctx context.Context, manager *session.Manager) {
	unsubscribe := manager.Subscribe(func(user *session.User) {
		if user == nil {
			slogctx.Info(ctx, "Signed out")
			return
		}

		slogctx.Info(ctx, "Session updated", "user_id", user.ID, "token_expiry", user.TokenExpiry)
	})
	defer unsubscribe()

	stop := manager.StartPeriodicRefreshCheck(ctx)
	defer stop()

	slogctx.Info(ctx, "Watching the session")
	<-ctx.Done()
}
