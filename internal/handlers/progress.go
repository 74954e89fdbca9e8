package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/watchtrack/internal/platform/api"
	"github.com/example/watchtrack/internal/platform/httpserver"
	"github.com/example/watchtrack/internal/progress"
)

type listProgressResponse struct {
	Items []progress.VideoProgress `json:"items"`
}

// GetProgress returns the progress snapshot for one video. Read-only; it
// never triggers a persistence write.
func GetProgress(store *progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		videoID := strings.TrimSpace(chi.URLParam(r, "video_id"))
		if videoID == "" {
			api.BadRequest(w, "MISSING_VIDEO_ID", "video_id is required", rid, nil)
			return
		}
		rec, ok := store.GetProgress(videoID)
		if !ok {
			api.NotFound(w, "NOT_FOUND", "No progress for video", rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, rec)
	}
}

// ListProgress returns every tracked video, for library views that render
// percent-watched badges.
func ListProgress(store *progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, listProgressResponse{Items: store.ListProgress()})
	}
}
