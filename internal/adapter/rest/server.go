package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bus-ops/pkg/logger"
)

// Server is the HTTP server exposing the operational mutation and
// projection surface.
type Server struct {
	srv *http.Server
	log logger.Logger
}

// New creates a new Server listening on addr (e.g. ":8080").
func New(addr string, log logger.Logger, register func(mux *http.ServeMux)) *Server {
	mux := http.NewServeMux()

	if register != nil {
		register(mux)
	}

	mux.HandleFunc("/health", healthHandler)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		log: log,
	}
}

// Start runs the server and returns when ctx is cancelled or the server
// fails. It attempts a graceful shutdown with a 5s timeout when ctx is
// done.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("http_server_start", "Starting HTTP server on address: "+s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("http_server_shutdown", "Shutting down HTTP server")
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
