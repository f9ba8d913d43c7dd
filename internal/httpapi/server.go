// Package httpapi serves the node's local status endpoint.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
)

type Options struct {
	Addr string
	// StaleAfter marks the node degraded when no sample was taken for this
	// long. Zero disables the check.
	StaleAfter time.Duration
	Logger     *slog.Logger
}

func NewMux(provider StatusProvider, staleAfter time.Duration) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, &healthHandler{
		provider: provider,
		stale:    staleAfter,
		now:      time.Now,
	})
	return mux
}

func NewServer(provider StatusProvider, opts Options) *http.Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
	)
	return &http.Server{
		Addr:              opts.Addr,
		Handler:           requestLogger(logger, recovery(NewMux(provider, opts.StaleAfter))),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
