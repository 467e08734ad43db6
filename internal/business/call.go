package business

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/pkg/authorizer"
	"github.com/openkcm/session-client/pkg/session"
)

// Request is an API call made on behalf of the signed in user.
type Request struct {
	Method string
	URL    string
	Body   string
	Header http.Header
}

// CallMain sends the request with the session's access token and writes the
// response body to out.
func CallMain(ctx context.Context, cfg *config.Config, request Request, out io.Writer) error {
	manager, closeFn, err := initSessionManager(ctx, cfg, terminalNavigator{out: out})
	if err != nil {
		return fmt.Errorf("initialising the session manager: %w", err)
	}
	defer closeFn()

	return call(ctx, manager, http.DefaultTransport, request, out)
}

func call(ctx context.Context, manager *session.Manager, base http.RoundTripper, request Request, out io.Writer) error {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if request.Body != "" {
		body = strings.NewReader(request.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, request.URL, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	for name, values := range request.Header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	resp, err := authorizer.NewClient(manager, base).Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		statusErr := &session.StatusError{StatusCode: resp.StatusCode}
		manager.HandleAuthError(ctx, statusErr)

		return statusErr
	}

	return nil
}
