// Package httpserver builds the HTTP server that serves snapshot reads.
package httpserver

import (
	"net/http"
	"time"
)

// Timeouts for the reporting API. Race listings at precinct level are large
// JSON bodies, so writes get more room than reads.
const (
	ReadHeaderTimeout = 5 * time.Second
	ReadTimeout       = 15 * time.Second
	WriteTimeout      = 60 * time.Second
	IdleTimeout       = 120 * time.Second
)

// New returns a server for handler listening on addr.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
		MaxHeaderBytes:    1 << 16,
	}
}
