// Package worker ingests playback events from NATS JetStream and feeds them
// to the segment tracker, mirroring the HTTP event surface for hosts that
// report playback over the bus instead.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/watchtrack/internal/tracker"
)

// SubjectPlaybackEvents is the stream subject carrying raw playback signals.
const SubjectPlaybackEvents = "playback.events"

const durableName = "watchtrack_playback"

// PlaybackEvent is the bus payload for one playback signal. SessionKey
// groups events of one playback run; the consumer opens a tracking session
// the first time it sees a key.
type PlaybackEvent struct {
	EventID    string  `json:"event_id"`
	SessionKey string  `json:"session_key"`
	VideoID    string  `json:"video_id"`
	Type       string  `json:"type"`
	Position   float64 `json:"position"`
	Duration   float64 `json:"duration,omitempty"`
	Buffered   float64 `json:"buffered,omitempty"`
	ClientTsMs int64   `json:"client_ts_ms,omitempty"`
}

// Consumer applies bus playback events to the tracker.
type Consumer struct {
	manager *tracker.Manager
	log     *zap.Logger

	mu       sync.Mutex
	sessions map[string]string // session key -> tracker session id
}

func NewConsumer(manager *tracker.Manager, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		manager:  manager,
		log:      log,
		sessions: make(map[string]string),
	}
}

// Apply dispatches one event to its tracking session. Unknown event types
// are an error so the caller can count them; a malformed event never wedges
// the tracker.
func (c *Consumer) Apply(ctx context.Context, ev PlaybackEvent) error {
	if ev.SessionKey == "" || ev.VideoID == "" {
		return errors.New("playback event missing session_key or video_id")
	}

	if ev.Type == "teardown" {
		c.mu.Lock()
		id, ok := c.sessions[ev.SessionKey]
		delete(c.sessions, ev.SessionKey)
		c.mu.Unlock()
		if ok {
			c.manager.EndSession(ctx, id)
		}
		return nil
	}

	s := c.session(ev.SessionKey, ev.VideoID)
	switch ev.Type {
	case "play":
		s.Play(ev.Position)
	case "pause":
		s.Pause(ctx, ev.Position)
	case "seeking":
		s.SeekStart(ctx, ev.Position)
	case "seeked":
		s.Seeked(ev.Position)
	case "timeupdate":
		s.TimeUpdate(ev.Position)
		if ev.Buffered > 0 {
			s.Buffered(ev.Buffered)
		}
	case "ended":
		s.Ended(ctx, ev.Position)
	case "loadedmetadata":
		s.DurationKnown(ev.Duration)
	default:
		return fmt.Errorf("unknown playback event type %q", ev.Type)
	}
	return nil
}

func (c *Consumer) session(key, videoID string) *tracker.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.sessions[key]; ok {
		if s, ok := c.manager.Session(id); ok {
			return s
		}
	}
	s, _ := c.manager.StartSession(videoID)
	c.sessions[key] = s.ID
	return s
}

// Start pull-subscribes to the playback subject and applies events until ctx
// is cancelled. Malformed or unknown events are logged and Acked; a poison
// message must not wedge the stream.
func (c *Consumer) Start(ctx context.Context, nc *nats.Conn) {
	js, err := nc.JetStream()
	if err != nil {
		c.log.Error("playback_consumer: jetstream", zap.Error(err))
		return
	}

	sub, err := js.PullSubscribe(SubjectPlaybackEvents, durableName)
	if err != nil {
		c.log.Error("playback_consumer: subscribe", zap.Error(err))
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msgs, err := sub.Fetch(64, nats.MaxWait(2*time.Second))
			if err != nil {
				if err == nats.ErrTimeout {
					continue
				}
				c.log.Warn("playback_consumer: fetch", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			for _, m := range msgs {
				var ev PlaybackEvent
				if err := json.Unmarshal(m.Data, &ev); err != nil {
					c.log.Warn("playback_consumer: invalid json", zap.Error(err))
					c.ack(m)
					continue
				}
				if err := c.Apply(ctx, ev); err != nil {
					c.log.Warn("playback_consumer: apply failed",
						zap.String("type", ev.Type),
						zap.String("video_id", ev.VideoID),
						zap.Error(err))
				}
				c.ack(m)
			}
		}
	}()
}

func (c *Consumer) ack(m *nats.Msg) {
	if err := m.Ack(); err != nil {
		c.log.Warn("playback_consumer: ack", zap.Error(err))
	}
}
