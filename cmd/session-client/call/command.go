package call

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
	"github.com/openkcm/session-client/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	var (
		request business.Request
		headers []string
	)

	cmd := cmdutils.CobraCommand(
		"call",
		"Call an API as the signed in user",
		"Send a request with the session's access token. An expired token is refreshed "+
			"and a rejected request is retried once.",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config) error {
			header, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			request.Header = header

			return business.CallMain(ctx, cfg, request, os.Stdout)
		},
	)

	cmd.Flags().StringVar(&request.URL, "url", "", "request URL")
	cmd.Flags().StringVarP(&request.Method, "method", "X", http.MethodGet, "request method")
	cmd.Flags().StringVarP(&request.Body, "data", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header as 'Name: value'")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func parseHeaders(values []string) (http.Header, error) {
	header := http.Header{}

	for _, value := range values {
		name, v, ok := strings.Cut(value, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q", value)
		}

		header.Add(strings.TrimSpace(name), strings.TrimSpace(v))
	}

	return header, nil
}
