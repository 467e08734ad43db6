// Package server runs the loopback listener that receives the authorization
// callback of a login started from the command line.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"
)

var ErrCallbackTimeout = errors.New("timed out waiting for the authorization callback")

// Callback is an authorization callback received by the listener. Complete
// must be called exactly once with the outcome shown to the browser.
type Callback struct {
	URL    *url.URL
	result chan error
}

func (c Callback) Complete(err error) {
	c.result <- err
}

// CallbackServer hands the first callback it receives to Next. Every later
// callback is answered with 409.
type CallbackServer struct {
	server    *http.Server
	listener  net.Listener
	callbacks chan Callback
	received  atomic.Bool
	path      string
}

// ListenCallback binds the host and port of redirectURI and serves its path.
func ListenCallback(ctx context.Context, redirectURI string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URI: %w", err)
	}

	if u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("redirect URI must be a loopback http URL: %s", redirectURI)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	listener, err := new(net.ListenConfig).Listen(ctx, "tcp", u.Host)
	if err != nil {
		return nil, oops.In("Callback Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	s := &CallbackServer{
		listener:  listener,
		callbacks: make(chan Callback, 1),
		path:      path,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, s.handleCallback)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slogctx.Info(ctx, "Serving the callback listener", "address", listener.Addr().String())

		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve the callback listener", "error", err)
		}

		slogctx.Info(ctx, "Stopped the callback listener")
	}()

	return s, nil
}

// URL returns the address the listener serves the callback on.
func (s *CallbackServer) URL() string {
	return "http://" + s.listener.Addr().String() + s.path
}

// Next waits for the next callback.
func (s *CallbackServer) Next(ctx context.Context, timeout time.Duration) (Callback, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case cb := <-s.callbacks:
		return cb, nil
	case <-timer.C:
		return Callback{}, ErrCallbackTimeout
	case <-ctx.Done():
		return Callback{}, ctx.Err()
	}
}

// Shutdown stops the listener, waiting up to timeout for open requests.
func (s *CallbackServer) Shutdown(ctx context.Context, timeout time.Duration) error {
	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer shutdownRelease()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return oops.In("Callback Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down the callback listener")
	}

	return nil
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, req *http.Request) {
	ctx := slogctx.With(req.Context(), "request_id", uuid.NewString())

	if !s.received.CompareAndSwap(false, true) {
		slogctx.Warn(ctx, "Unexpected authorization callback")
		http.Error(w, "The sign in callback was already received.", http.StatusConflict)

		return
	}

	cb := Callback{URL: req.URL, result: make(chan error, 1)}
	s.callbacks <- cb

	var err error
	select {
	case err = <-cb.result:
	case <-ctx.Done():
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprintf(w, "Sign in failed: %v\n", err)

		return
	}

	_, _ = fmt.Fprintln(w, "Signed in. You can close this window.")
}
