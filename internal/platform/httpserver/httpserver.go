// Package httpserver builds the certifier's http.Server. Per-request
// deadlines live in the router's timeout middleware, so only the header read
// and idle keep-alives are bounded here.
package httpserver

import (
	"net/http"
	"time"
)

// New returns a server for the certifier API on addr.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
