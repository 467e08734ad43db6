package business

import (
	"context"
	"fmt"
	"io"
	"net/url"

	slogctx "github.com/veqryn/slog-context"
)

// terminalNavigator asks the user to open external locations in a browser.
// Locations inside the application only change the view, so they are logged.
type terminalNavigator struct {
	out io.Writer
}

func (n terminalNavigator) Navigate(ctx context.Context, location string) error {
	if !isExternal(location) {
		slogctx.Info(ctx, "Navigated", "location", location)
		return nil
	}

	_, err := fmt.Fprintf(n.out, "Open the following URL in your browser to sign in:\n\n  %s\n\n", location)
	if err != nil {
		return fmt.Errorf("writing sign in URL: %w", err)
	}

	return nil
}

func isExternal(location string) bool {
	u, err := url.Parse(location)
	return err == nil && u.IsAbs() && u.Host != ""
}
