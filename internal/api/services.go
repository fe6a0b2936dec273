package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/13132klain/Cyber-Mtandao/internal/catalog"
)

// CatalogStore lists the active service catalog.
type CatalogStore interface {
	ListServices(ctx context.Context) ([]catalog.Service, error)
}

// RegisterServicesRoutes exposes the service catalog.
func RegisterServicesRoutes(mux *http.ServeMux, store CatalogStore) {
	mux.Handle("/api/services", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		services, err := store.ListServices(r.Context())
		if err != nil {
			log.Printf("[API] list services failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "query failed"})
			return
		}
		if services == nil {
			services = []catalog.Service{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"services": services})
	}), "services"))
}
