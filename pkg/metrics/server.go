package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/catwalk/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the registry at GET /metrics while a long walk runs, so a
// scrape can follow progress before the textfile is written at exit.
type Server struct {
	server   *http.Server
	addr     string
	ln       net.Listener
	stopOnce sync.Once
}

// ServerConfig is the metrics listener configuration.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":9090" or "127.0.0.1:0"
	Addr string
}

// NewServer creates a metrics server. It does not listen until Listen or
// Start is called.
func NewServer(config ServerConfig) *Server {
	mux := http.NewServeMux()

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "catwalk metrics are disabled", http.StatusServiceUnavailable)
	})
	if IsEnabled() {
		handler = promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorLog:          scrapeErrorLog{},
		})
	}
	mux.Handle("/metrics", handler)

	return &Server{
		addr: config.Addr,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
	}
}

// Listen binds the listen address. Calling it before Start makes Addr
// valid immediately.
func (s *Server) Listen() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Start serves until ctx is cancelled and then shuts down. It returns nil
// after a clean shutdown, whether triggered by ctx or by Stop.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	logger.Info("Serving metrics on http://%s/metrics", s.Addr())

	served := make(chan error, 1)
	go func() {
		served <- s.server.Serve(s.ln)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server on %s: %w", s.Addr(), err)
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	}
}

// Stop shuts the server down, waiting for in-flight scrapes until ctx
// expires. Only the first call does anything.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if err = s.server.Shutdown(ctx); err != nil {
			err = fmt.Errorf("metrics server shutdown: %w", err)
			return
		}
		logger.Debug("Metrics server on %s stopped", s.Addr())
	})
	return err
}

// scrapeErrorLog routes promhttp errors to the logger.
type scrapeErrorLog struct{}

func (scrapeErrorLog) Println(v ...any) {
	logger.Warn("metrics scrape: %s", fmt.Sprint(v...))
}
