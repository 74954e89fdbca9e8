// Package tracker converts raw playback signals into committed watched
// intervals. Each session keeps at most one open segment and closes it into
// the progress store on pause, seek, end, and teardown.
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/watchtrack/internal/progress"
)

// Session tracks one playback run of one video. Event methods take the
// client-reported playback position at the moment of the event; they are
// safe for concurrent use, the mutex serializes them the way a host event
// loop would.
type Session struct {
	ID      string
	VideoID string

	store *progress.Store
	log   *zap.Logger

	mu           sync.Mutex
	isPlaying    bool
	segmentStart *float64
	currentTime  float64
	duration     float64
	buffered     float64 // display-only fraction, no correctness weight
	ended        bool

	ticker *time.Ticker
	done   chan struct{}
}

// Snapshot is the session state exposed to consumers.
type Snapshot struct {
	SessionID    string  `json:"session_id"`
	VideoID      string  `json:"video_id"`
	IsPlaying    bool    `json:"is_playing"`
	CurrentTime  float64 `json:"current_time"`
	Duration     float64 `json:"duration"`
	Buffered     float64 `json:"buffered"`
	OpenSegment  bool    `json:"open_segment"`
	SegmentStart float64 `json:"segment_start,omitempty"`
}

// Play marks playback running from the given position. The segment is not
// opened here; the sampler opens it on the next tick, which tolerates
// startup jitter.
func (s *Session) Play(at float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.isPlaying = true
	s.currentTime = at
}

// Pause commits the open segment, if any, ending at the pause position.
func (s *Session) Pause(ctx context.Context, at float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isPlaying = false
	s.currentTime = at
	s.closeSegmentLocked(ctx, at)
}

// SeekStart closes the open segment at the pre-seek position so the
// committed interval covers only contiguous playback. Must be called before
// the playback head moves.
func (s *Session) SeekStart(ctx context.Context, at float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSegmentLocked(ctx, at)
}

// Seeked records the post-seek playback head.
func (s *Session) Seeked(to float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.currentTime = to
}

// Ended commits the trailing segment and stops tracking playback.
func (s *Session) Ended(ctx context.Context, at float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isPlaying = false
	s.ended = true
	s.currentTime = at
	s.closeSegmentLocked(ctx, at)
}

// DurationKnown reports authoritative media duration and initializes the
// progress record. Safe to call repeatedly; the store never clobbers an
// existing record.
func (s *Session) DurationKnown(d float64) {
	s.mu.Lock()
	s.duration = d
	s.mu.Unlock()
	s.store.InitializeVideo(s.VideoID, d)
}

// TimeUpdate records the current playback head between lifecycle events.
func (s *Session) TimeUpdate(at float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.currentTime = at
}

// Buffered records the buffered fraction for display. Clamped to [0,1];
// upstream duration refinement can otherwise push it past 1.
func (s *Session) Buffered(fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	s.buffered = fraction
}

// End tears the session down: the sampler is stopped, any open segment is
// committed (teardown implies a pause), and the last position is recorded
// unconditionally.
func (s *Session) End(ctx context.Context) {
	s.stopSampler()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.isPlaying = false
	s.ended = true
	s.closeSegmentLocked(ctx, s.currentTime)
	s.store.SetLastPosition(ctx, s.VideoID, s.currentTime)
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		SessionID:   s.ID,
		VideoID:     s.VideoID,
		IsPlaying:   s.isPlaying,
		CurrentTime: s.currentTime,
		Duration:    s.duration,
		Buffered:    s.buffered,
	}
	if s.segmentStart != nil {
		snap.OpenSegment = true
		snap.SegmentStart = *s.segmentStart
	}
	return snap
}

// Sample is one sampler tick: while playing with no open segment, open one
// at the current playback head. The manager's ticker calls this once per
// interval; hosts that own their clock may drive it directly.
func (s *Session) Sample() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isPlaying || s.segmentStart != nil {
		return
	}
	start := s.currentTime
	s.segmentStart = &start
}

// closeSegmentLocked commits [segmentStart, at] and clears the open segment.
// Repeat close signals observe a nil segmentStart and do nothing; zero or
// negative spans are dropped by the store's start<end filter.
func (s *Session) closeSegmentLocked(ctx context.Context, at float64) {
	if s.segmentStart == nil {
		return
	}
	start := *s.segmentStart
	s.segmentStart = nil
	s.store.AddInterval(ctx, s.VideoID, start, at)
	s.log.Debug("segment committed",
		zap.String("session_id", s.ID),
		zap.String("video_id", s.VideoID),
		zap.Float64("start", start),
		zap.Float64("end", at))
}

func (s *Session) runSampler(interval time.Duration) {
	s.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-s.ticker.C:
				s.Sample()
			}
		}
	}()
}

func (s *Session) stopSampler() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	s.ticker.Stop()
	close(s.done)
	s.done = nil
}
