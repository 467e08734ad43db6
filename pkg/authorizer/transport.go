// Package authorizer attaches the session's bearer token to outgoing requests
// and retries a request once after refreshing the session on 401.
package authorizer

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/telemetry"
)

const tracerName = "github.com/openkcm/session-client/pkg/authorizer"

// Session supplies tokens to the Transport.
type Session interface {
	// FetchAccessToken returns the current access token, or "" without a session.
	// refreshed reports whether the session was refreshed to obtain it.
	FetchAccessToken(ctx context.Context) (token string, refreshed bool, err error)
	// RefreshTokens renews the session. It signs out by itself on failure.
	RefreshTokens(ctx context.Context) error
	Logout(ctx context.Context)
}

// Transport is an http.RoundTripper with a retry budget of one.
type Transport struct {
	Session Session
	// Base dispatches the requests. http.DefaultTransport is used when nil.
	Base http.RoundTripper
}

var _ http.RoundTripper = (*Transport)(nil)

// NewClient returns an HTTP client authorizing its requests with session.
func NewClient(session Session, base http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: &Transport{Session: session, Base: base},
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := slogctx.With(req.Context(),
		"request_id", uuid.NewString(),
		"method", req.Method,
		"host", req.URL.Host,
	)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "authorize-request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", req.Method)),
	)
	defer span.End()

	resp, retried, err := t.roundTrip(ctx, req)
	span.SetAttributes(attribute.Bool("retried", retried))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	telemetry.RecordRequest(ctx, resp.StatusCode, retried)

	return resp, nil
}

func (t *Transport) roundTrip(ctx context.Context, req *http.Request) (_ *http.Response, retried bool, _ error) {
	token, refreshed, err := t.Session.FetchAccessToken(ctx)
	if err != nil {
		return nil, false, err
	}

	resp, err := t.base().RoundTrip(authorize(ctx, req, token))
	if err != nil {
		return nil, false, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, false, nil
	}

	if refreshed {
		// the refresh budget of the request went to fetching the token
		slogctx.Warn(ctx, "Request unauthorized with a freshly refreshed token, not retrying")
		return resp, false, nil
	}

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		slogctx.Warn(ctx, "Request body cannot be replayed, not retrying")
		return resp, false, nil
	}

	slogctx.Info(ctx, "Request unauthorized, refreshing the session")

	if err := t.Session.RefreshTokens(ctx); err != nil {
		slogctx.Warn(ctx, "Session refresh failed", "error", err)
		return resp, false, nil
	}

	token, _, err = t.Session.FetchAccessToken(ctx)
	if err != nil || token == "" {
		slogctx.Warn(ctx, "No access token after refresh, signing out", "error", err)
		t.Session.Logout(ctx)

		return resp, false, nil
	}

	retry, err := replayable(ctx, req, token)
	if err != nil {
		return resp, false, nil
	}

	drain(resp)

	slogctx.Debug(ctx, "Retrying the request with a refreshed token")
	resp, err = t.base().RoundTrip(retry)
	if err != nil {
		return nil, true, err
	}

	return resp, true, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}

	return http.DefaultTransport
}

// authorize returns a copy of req carrying token. Without a token req is sent unmodified.
func authorize(ctx context.Context, req *http.Request, token string) *http.Request {
	if token == "" {
		return req
	}

	authorized := req.Clone(ctx)
	authorized.Header.Set("Authorization", "Bearer "+token)

	return authorized
}

func replayable(ctx context.Context, req *http.Request, token string) (*http.Request, error) {
	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			slogctx.Warn(ctx, "Failed to replay the request body", "error", err)
			return nil, err
		}

		retry.Body = body
	}

	retry.Header.Set("Authorization", "Bearer "+token)

	return retry, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
