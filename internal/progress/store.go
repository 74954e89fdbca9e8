package progress

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/example/watchtrack/internal/interval"
	"github.com/example/watchtrack/internal/kv"
)

// DefaultStorageKey is the KV key the whole progress map is persisted under.
const DefaultStorageKey = "videoProgress"

// Observer receives a snapshot of a record after each successful mutation.
type Observer func(VideoProgress)

// Store owns the videoID -> VideoProgress mapping. It is the only code that
// mutates records: every operation is a locked read-modify-write, and
// derived fields are recomputed inside the lock. Persistence is best-effort;
// a failed write is logged and in-memory state stays authoritative.
type Store struct {
	mu      sync.RWMutex
	records map[string]VideoProgress
	current string

	kv  kv.Store
	key string
	log *zap.Logger

	obsMu     sync.RWMutex
	observers []Observer
}

func NewStore(backend kv.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		records: make(map[string]VideoProgress),
		kv:      backend,
		key:     DefaultStorageKey,
		log:     log,
	}
}

// Subscribe registers an observer called after every successful mutation.
// Observers run outside the store lock and must not call back into
// mutating operations.
func (s *Store) Subscribe(fn Observer) {
	if fn == nil {
		return
	}
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

func (s *Store) notify(rec VideoProgress) {
	s.obsMu.RLock()
	obs := s.observers
	s.obsMu.RUnlock()
	for _, fn := range obs {
		fn(rec.clone())
	}
}

// InitializeVideo creates an empty record for the video if none exists and
// marks it current. Re-initialization never overwrites recorded history or
// an already-known duration; metadata can arrive more than once. Unlike the
// interval and position mutations it does not write through to the KV
// backend; an empty record is reconstructible.
func (s *Store) InitializeVideo(videoID string, totalDuration float64) {
	s.mu.Lock()
	if _, ok := s.records[videoID]; ok {
		s.current = videoID
		s.mu.Unlock()
		return
	}
	rec := VideoProgress{
		VideoID:       videoID,
		TotalDuration: totalDuration,
	}
	s.records[videoID] = rec
	s.current = videoID
	s.mu.Unlock()

	s.notify(rec)
}

// AddInterval records a watched interval and re-derives coverage. Degenerate
// intervals (start >= end) and unknown videos are discarded without touching
// state; both are normal filtered cases, not faults.
func (s *Store) AddInterval(ctx context.Context, videoID string, start, end float64) {
	if start >= end {
		return
	}

	s.mu.Lock()
	rec, ok := s.records[videoID]
	if !ok {
		s.mu.Unlock()
		return
	}

	merged := interval.Merge(append(rec.Intervals, interval.Interval{Start: start, End: end}))
	rec.Intervals = merged
	rec.TotalWatchedTime = interval.WatchedTime(merged)
	if rec.TotalDuration > 0 {
		pct := rec.TotalWatchedTime / rec.TotalDuration * 100
		if pct > 100 {
			pct = 100
		}
		rec.PercentWatched = pct
	}
	s.records[videoID] = rec
	s.mu.Unlock()

	s.persist(ctx)
	s.notify(rec)
}

// SetLastPosition records the most recent playback head position.
func (s *Store) SetLastPosition(ctx context.Context, videoID string, position float64) {
	s.mu.Lock()
	rec, ok := s.records[videoID]
	if !ok {
		s.mu.Unlock()
		return
	}
	rec.LastPosition = position
	s.records[videoID] = rec
	s.mu.Unlock()

	s.persist(ctx)
	s.notify(rec)
}

// GetProgress returns a snapshot of the video's record. It never writes.
func (s *Store) GetProgress(videoID string) (VideoProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[videoID]
	if !ok {
		return VideoProgress{}, false
	}
	return rec.clone(), true
}

// ListProgress returns snapshots of every tracked video, ordered by id.
func (s *Store) ListProgress() []VideoProgress {
	s.mu.RLock()
	out := make([]VideoProgress, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].VideoID < out[j].VideoID })
	return out
}

// CurrentVideo reports the most recently initialized video, if any.
func (s *Store) CurrentVideo() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != ""
}

// Save serializes the whole mapping to the KV backend.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	payload, err := encodeEntries(s.records)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.key, payload)
}

// Load replaces the in-memory mapping with the persisted one. An absent key
// or undecodable payload is fail-open: the current mapping is kept and the
// service starts cold rather than crashing.
func (s *Store) Load(ctx context.Context) {
	payload, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.log.Warn("progress: load failed, keeping in-memory state", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	records, err := decodeEntries(payload)
	if err != nil {
		s.log.Warn("progress: persisted payload undecodable, keeping in-memory state", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

func (s *Store) persist(ctx context.Context) {
	if err := s.Save(ctx); err != nil {
		s.log.Warn("progress: save failed, in-memory state stays authoritative", zap.Error(err))
	}
}
