// internal/server/server.go
//
// HTTP server helper with robust timeouts and graceful shutdown.
//
// Production hardening recommends:
//
//   • ReadHeaderTimeout – abort slow-loris headers (10 s)
//   • WriteTimeout      – cap total response time, uploads included (60 s)
//   • IdleTimeout       – close keep-alives on idle clients (60 s)
//
// Run blocks until ctx is cancelled, then drains in-flight requests for up
// to ShutdownGrace before returning.

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ShutdownGrace bounds how long Run waits for in-flight requests.
const ShutdownGrace = 15 * time.Second

// New constructs an *http.Server with sensible defaults.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Run serves srv until ctx ends or the listener fails.  A clean shutdown
// returns nil.
func Run(ctx context.Context, srv *http.Server, log *zap.SugaredLogger) error {
	errc := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Infow("shutting down", "grace", ShutdownGrace)
	sctx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
