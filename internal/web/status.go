// Package web exposes a small debug/status HTTP surface next to the TCP
// protocol. It is read-only observability, not part of the command
// protocol.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kshitij406/VendingMachine/internal/inventory"
)

type ProductResponse struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

type StatsResponse struct {
	ActiveSessions int64 `json:"active_sessions"`
	Products       int   `json:"products"`
}

// NewRouter builds the status router. activeSessions is polled per
// request so the count is always current.
func NewRouter(snap *inventory.Snapshot, activeSessions func() int64) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/products", func(w http.ResponseWriter, _ *http.Request) {
		products := snap.List()
		out := make([]ProductResponse, len(products))
		for i, p := range products {
			out[i] = ProductResponse{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock}
		}
		respondJSON(w, http.StatusOK, out)
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, StatsResponse{
			ActiveSessions: activeSessions(),
			Products:       len(snap.List()),
		})
	})

	return r
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
