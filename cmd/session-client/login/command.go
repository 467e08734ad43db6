package login

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
		"login",
		"Sign in",
		"Sign in through the browser with the authorization code flow and PKCE. "+
			"The callback is received on the configured loopback redirect URI.",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config) error {
			return business.LoginMain(ctx, cfg, os.Stdout)
		},
	)
}
