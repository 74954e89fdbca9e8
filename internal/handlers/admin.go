package handlers

import (
	"net/http"

	"github.com/example/watchtrack/internal/platform/api"
	"github.com/example/watchtrack/internal/platform/httpserver"
	"github.com/example/watchtrack/internal/progress"
)

// Flush forces a synchronous save of the whole progress map. Routine
// persistence is best-effort after each mutation; this is the operator's
// way to confirm state hit the backend (for example before a migration).
func Flush(store *progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		if err := store.Save(r.Context()); err != nil {
			api.WriteError(w, http.StatusServiceUnavailable, "SAVE_FAILED", "Persistence backend unavailable", rid, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
