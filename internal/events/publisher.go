// Package events provides a fire-and-forget NATS publisher for progress
// updates. Consumers (library views, recommendation jobs) subscribe instead
// of polling GET /v1/progress.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/watchtrack/internal/progress"
)

// SubjectProgressUpdated carries one event per successful store mutation.
const SubjectProgressUpdated = "watchtrack.progress.updated"

// ProgressUpdated is the envelope published on SubjectProgressUpdated.
type ProgressUpdated struct {
	EventID             string    `json:"event_id"`
	VideoID             string    `json:"video_id"`
	PercentWatched      float64   `json:"percent_watched"`
	TotalWatchedSeconds float64   `json:"total_watched_seconds"`
	LastPosition        float64   `json:"last_position"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// Publisher publishes progress updates to NATS JetStream.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

// New creates a Publisher using an existing JetStream context.
// Pass js=nil to get a no-op stub (useful in tests and deployments without
// NATS).
func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	return &Publisher{js: js, log: log}
}

// Observer adapts the publisher to the progress store's subscription
// interface.
func (p *Publisher) Observer() progress.Observer {
	return func(rec progress.VideoProgress) {
		p.Publish(rec)
	}
}

// Publish sends a progress update asynchronously (fire-and-forget).
// Failures are logged as warnings and never surface to the caller.
// Safe to call with a nil receiver.
func (p *Publisher) Publish(rec progress.VideoProgress) {
	if p == nil || p.js == nil {
		return
	}
	ev := ProgressUpdated{
		EventID:             uuid.NewString(),
		VideoID:             rec.VideoID,
		PercentWatched:      rec.PercentWatched,
		TotalWatchedSeconds: rec.TotalWatchedTime,
		LastPosition:        rec.LastPosition,
		OccurredAt:          time.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("video_id", rec.VideoID), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(SubjectProgressUpdated, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", SubjectProgressUpdated), zap.Error(err))
	}
}
