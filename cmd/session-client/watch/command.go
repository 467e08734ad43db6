package watch

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
	"github.com/openkcm/session-client/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"watch",
		"Keep the session fresh",
		"Run the periodic refresh check until interrupted, with telemetry and a status server.",
		buildInfo,
		cmdutils.RunAsService,
		func(ctx context.Context, cfg *config.Config) error {
			return business.WatchMain(ctx, cfg, os.Stdout)
		},
	)
}
