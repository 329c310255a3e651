package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Server timeouts.
const (
	serverReadTimeout    = 10 * time.Second
	serverWriteTimeout   = 5 * time.Minute
	serverIdleTimeout    = 60 * time.Second
	serverMaxHeaderShift = 20
	shutdownTimeout      = 5 * time.Second
)

// HealthPath is the unauthenticated liveness endpoint.
const HealthPath = "/health"

// errMissingToken is returned by Start when handlers are registered without a token.
var errMissingToken = errors.New("api token is empty or has not been set")

// API is the optional HTTP server exposing the check and metrics endpoints.
type API struct {
	Token       string
	Addr        string
	hasHandlers bool
	mux         *http.ServeMux
	server      HTTPServer
}

// HTTPServer is the subset of *http.Server used by RunHTTPServer.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// New creates an API listening on addr.
//
// Parameters:
//   - token: Bearer token required by handlers wrapped with RequireToken.
//   - addr: Listen address (host:port).
//   - server: Optional server replacing the default *http.Server, used in tests.
//
// Returns:
//   - *API: Instance with the health endpoint already mounted.
func New(token, addr string, server ...HTTPServer) *API {
	var injected HTTPServer
	if len(server) > 0 {
		injected = server[0]
	}

	api := &API{
		Token:  token,
		Addr:   addr,
		mux:    http.NewServeMux(),
		server: injected,
	}

	api.mux.HandleFunc(HealthPath, healthHandler)

	logrus.WithField("addr", addr).Debug("Initialized new API instance")

	return api
}

// RegisterFunc mounts a token-protected handler function at path.
func (a *API) RegisterFunc(path string, handler func(http.ResponseWriter, *http.Request)) {
	a.mux.HandleFunc(path, a.RequireToken(handler))
	a.hasHandlers = true

	logrus.WithField("path", path).Debug("Registered API handler function")
}

// RegisterHandler mounts a token-protected handler at path.
func (a *API) RegisterHandler(path string, handler http.Handler) {
	a.mux.Handle(path, a.RequireToken(handler.ServeHTTP))
	a.hasHandlers = true

	logrus.WithField("path", path).Debug("Registered API handler")
}

// Handler exposes the routing mux.
func (a *API) Handler() http.Handler {
	return a.mux
}

// Start serves the registered handlers until ctx is cancelled.
//
// Nothing is started when no handler has been registered. With blocking set
// the call returns only after shutdown; otherwise the server runs in the
// background and errors are logged.
//
// Parameters:
//   - ctx: Context whose cancellation triggers graceful shutdown.
//   - blocking: Whether to wait for the server to stop.
//
// Returns:
//   - error: Non-nil if the token is missing or the server fails.
func (a *API) Start(ctx context.Context, blocking bool) error {
	if !a.hasHandlers {
		logrus.Debug("No API handlers registered, HTTP API skipped")

		return nil
	}

	if a.Token == "" {
		return errMissingToken
	}

	server := a.server
	if server == nil {
		server = &http.Server{
			Addr:              a.Addr,
			Handler:           a.mux,
			ReadTimeout:       serverReadTimeout,
			WriteTimeout:      serverWriteTimeout,
			IdleTimeout:       serverIdleTimeout,
			ReadHeaderTimeout: serverReadTimeout,
			MaxHeaderBytes:    1 << serverMaxHeaderShift,
			BaseContext:       func(_ net.Listener) context.Context { return ctx },
		}
	}

	logrus.WithField("addr", a.Addr).Info("Starting HTTP API server")

	if blocking {
		return RunHTTPServer(ctx, server)
	}

	go func() {
		if err := RunHTTPServer(ctx, server); err != nil {
			logrus.WithError(err).Error("HTTP API server failed")
		}
	}()

	return nil
}

// RequireToken rejects requests without a matching bearer token.
func (a *API) RequireToken(handler func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	want := []byte("Bearer " + a.Token)

	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if a.Token == "" || !strings.HasPrefix(auth, "Bearer ") ||
			subtle.ConstantTimeCompare([]byte(auth), want) != 1 {
			logrus.WithField("path", r.URL.Path).Debug("Rejected unauthenticated API request")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)

			return
		}

		handler(w, r)
	}
}

// RunHTTPServer runs server until it fails or ctx is cancelled.
//
// A server closed by Shutdown is not reported as an error.
func RunHTTPServer(ctx context.Context, server HTTPServer) error {
	errChan := make(chan error, 1)

	go func() {
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logrus.Debug("HTTP API server stopped")

		return nil
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write([]byte("OK"))
}
