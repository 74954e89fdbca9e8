package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/watchtrack/internal/progress"
)

// DefaultSampleInterval is how often an active session samples the playback
// head. Sampling resolution bounds tracking accuracy; toggles faster than
// this may not open a segment at all, which under-counts and is accepted.
const DefaultSampleInterval = time.Second

// Manager owns the live tracking sessions. One session per playback run;
// ending a session stops its sampler so no stale tick can mutate a
// superseded run.
type Manager struct {
	store          *progress.Store
	log            *zap.Logger
	sampleInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(store *progress.Store, sampleInterval time.Duration, log *zap.Logger) *Manager {
	if sampleInterval <= 0 {
		sampleInterval = DefaultSampleInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:          store,
		log:            log,
		sampleInterval: sampleInterval,
		sessions:       make(map[string]*Session),
	}
}

// StartSession opens a tracking session for the video and returns it along
// with the resume position from persisted progress (0 when the video is
// unknown). The playback source should seek there before playing.
func (m *Manager) StartSession(videoID string) (*Session, float64) {
	s := &Session{
		ID:      uuid.NewString(),
		VideoID: videoID,
		store:   m.store,
		log:     m.log,
		done:    make(chan struct{}),
	}
	s.runSampler(m.sampleInterval)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	var resume float64
	if rec, ok := m.store.GetProgress(videoID); ok {
		resume = rec.LastPosition
		s.mu.Lock()
		s.currentTime = resume
		s.mu.Unlock()
	}

	m.log.Info("session started",
		zap.String("session_id", s.ID),
		zap.String("video_id", videoID),
		zap.Float64("resume_position", resume))
	return s, resume
}

// Session returns the live session by id.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// EndSession tears the session down and forgets it. Unknown ids are a no-op
// so repeated teardown signals stay idempotent.
func (m *Manager) EndSession(ctx context.Context, id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.End(ctx)
	m.log.Info("session ended",
		zap.String("session_id", s.ID),
		zap.String("video_id", s.VideoID))
}

// Shutdown ends every live session, committing trailing segments and last
// positions before the process exits.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.End(ctx)
	}
}
