// package server contains middleware & handlers for the client's local status endpoint
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/repertoire/internal/metrics"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers of the status server.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// RequestID tags each request with an X-Request-ID header, keeping one supplied by the caller.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(services.RequestIDHeader)
			if id == "" {
				id = shared.GenerateID()
				r.Header.Set(services.RequestIDHeader, id)
			}
			w.Header().Set(services.RequestIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

// Logging logs each request at debug level.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("served", "method", r.Method, "path", r.URL.Path,
				"request_id", r.Header.Get(services.RequestIDHeader), "duration", time.Since(start))
		})
	}
}

// StatusFunc returns the document served at /status.
type StatusFunc func() any

// StatusHandler serves a JSON snapshot of the client and a liveness probe.
type StatusHandler struct {
	status StatusFunc
}

// NewStatusHandler creates a [StatusHandler].
func NewStatusHandler(status StatusFunc) *StatusHandler {
	return &StatusHandler{status: status}
}

// Routes returns the HTTP routes this handler serves.
func (h *StatusHandler) Routes() []string {
	return []string{"/status", "/healthz"}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path == "/healthz" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
		return
	}

	var doc any
	if h.status != nil {
		doc = h.status()
	}
	data, err := shared.MarshalJSON(doc, true)
	if err != nil {
		http.Error(w, "failed to encode status", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// NewRouter returns a router serving /metrics, /status and /healthz.
func NewRouter(status StatusFunc, logger *log.Logger) *BasicRouter {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	r := NewBasicRouter()
	r.Use(RequestID(), Logging(shared.WithLogger(logger, "component", "server")))
	r.Handle(http.MethodGet, "/metrics", metrics.Handler())
	r.Handler(NewStatusHandler(status))
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *log.Logger) error {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return serve(ctx, ln, handler, logger)
}

func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *log.Logger) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down status server: %w", err)
		}
		return nil
	}
}
