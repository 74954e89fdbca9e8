// Package handlers exposes the HTTP surface: session lifecycle, playback
// events, and read-only progress queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/watchtrack/internal/platform/api"
	"github.com/example/watchtrack/internal/platform/httpserver"
	"github.com/example/watchtrack/internal/progress"
	"github.com/example/watchtrack/internal/tracker"
)

type startSessionRequest struct {
	VideoID string `json:"video_id"`
}

type startSessionResponse struct {
	SessionID      string                  `json:"session_id"`
	VideoID        string                  `json:"video_id"`
	ResumePosition float64                 `json:"resume_position"`
	Progress       *progress.VideoProgress `json:"progress,omitempty"`
}

type sessionEventRequest struct {
	Type     string  `json:"type"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration,omitempty"`
	Buffered float64 `json:"buffered,omitempty"`
}

// StartSession opens a tracking session and reports where playback should
// resume.
func StartSession(m *tracker.Manager, store *progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req startSessionRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		videoID := strings.TrimSpace(req.VideoID)
		if videoID == "" {
			api.BadRequest(w, "MISSING_VIDEO_ID", "video_id is required", rid, nil)
			return
		}

		s, resume := m.StartSession(videoID)
		resp := startSessionResponse{
			SessionID:      s.ID,
			VideoID:        videoID,
			ResumePosition: resume,
		}
		if rec, ok := store.GetProgress(videoID); ok {
			resp.Progress = &rec
		}
		api.WriteJSON(w, http.StatusCreated, resp)
	}
}

// SessionEvent dispatches one playback signal to its session. The position
// is the playback head at the moment of the event, which matters most for
// "seeking": it must be the pre-seek position.
func SessionEvent(m *tracker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		id := strings.TrimSpace(chi.URLParam(r, "session_id"))
		s, ok := m.Session(id)
		if !ok {
			api.NotFound(w, "SESSION_NOT_FOUND", "Unknown or ended session", rid)
			return
		}

		var req sessionEventRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}

		ctx := r.Context()
		switch req.Type {
		case "play":
			s.Play(req.Position)
		case "pause":
			s.Pause(ctx, req.Position)
		case "seeking":
			s.SeekStart(ctx, req.Position)
		case "seeked":
			s.Seeked(req.Position)
		case "timeupdate":
			s.TimeUpdate(req.Position)
			if req.Buffered > 0 {
				s.Buffered(req.Buffered)
			}
		case "ended":
			s.Ended(ctx, req.Position)
		case "loadedmetadata":
			s.DurationKnown(req.Duration)
		default:
			api.BadRequest(w, "UNKNOWN_EVENT_TYPE", "Unknown playback event type", rid,
				map[string]any{"type": req.Type})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// EndSession tears a session down. Idempotent: deleting an unknown or
// already-ended session is still 204.
func EndSession(m *tracker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "session_id"))
		m.EndSession(r.Context(), id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetSession returns the live session snapshot for display (current head,
// buffered fraction, open segment).
func GetSession(m *tracker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		id := strings.TrimSpace(chi.URLParam(r, "session_id"))
		s, ok := m.Session(id)
		if !ok {
			api.NotFound(w, "SESSION_NOT_FOUND", "Unknown or ended session", rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, s.Snapshot())
	}
}
