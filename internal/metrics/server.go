package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weft/internal/logging"
)

// HealthFunc reports whether the process should receive traffic.
type HealthFunc func() bool

// Server serves /metrics and /healthz.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// NewHandler builds the router. /healthz answers 503 whenever healthy reports
// false, which the dispatcher does while draining.
func NewHandler(collector *Collector, healthy HealthFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if healthy != nil && !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("draining"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if reg := collector.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	return r
}

// NewServer creates a server listening on addr.
func NewServer(addr string, collector *Collector, healthy HealthFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(collector, healthy),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logging.NewComponentLogger(logger, "metrics"),
	}
}

// Start binds the listener and serves in the background. It returns the bound
// address so callers using port 0 can find it.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return "", err
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "metrics server stopped", "metrics_server",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.listen for conflicts"),
			)
		}
	}()
	s.logger.Info("metrics server listening", logging.String("address", ln.Addr().String()))
	return ln.Addr().String(), nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
