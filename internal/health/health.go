// Package health serves the liveness endpoint used by container orchestrators.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type status struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// Router returns the health routes. db may be nil.
func Router(db Pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		s := status{Status: "ok"}
		code := http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				s.Status, s.Database = "degraded", err.Error()
				code = http.StatusServiceUnavailable
			} else {
				s.Database = "ok"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(s)
	})
	return r
}

// NewServer wraps Router in an http.Server listening on addr.
func NewServer(addr string, db Pinger) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      Router(db),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
