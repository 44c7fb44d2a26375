package enroll

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facecheck/internal/capture"
	"github.com/your-org/facecheck/internal/observability"
)

// Session is one browser enrollment. Uploaded frames are pushed to Frames,
// which is the session controller's capture device.
type Session struct {
	ID         string
	Controller *Controller
	Frames     *capture.Latest

	lastUsed time.Time

	// frameMu pairs each uploaded frame with the detection run on it.
	frameMu sync.Mutex
}

// CaptureFrame pushes img and captures it. Concurrent uploads to one session
// are serialised so every capture embeds its own frame.
func (s *Session) CaptureFrame(ctx context.Context, img image.Image) (Progress, error) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	s.Frames.Push(img)
	return s.Controller.Capture(ctx)
}

// PreviewFrame pushes img and runs detection on it without capturing.
func (s *Session) PreviewFrame(ctx context.Context, img image.Image) (Progress, error) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	s.Frames.Push(img)
	return s.Controller.Preview(ctx)
}

// Sessions tracks open enrollment sessions and expires idle ones.
type Sessions struct {
	deps Deps
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates a registry. deps.Opener is replaced per session by the
// session's frame buffer.
func NewSessions(deps Deps, ttl time.Duration) *Sessions {
	return &Sessions{
		deps:     deps,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

func (s *Sessions) Create() *Session {
	frames := capture.NewLatest()
	deps := s.deps
	deps.Opener = frames.Opener()

	sess := &Session{
		ID:         uuid.NewString(),
		Controller: NewController(deps),
		Frames:     frames,
	}

	s.mu.Lock()
	sess.lastUsed = s.now()
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	observability.EnrollmentSessions.Set(float64(n))
	return sess
}

// Get returns the session and marks it used.
func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if ok {
		sess.lastUsed = s.now()
	}
	return sess, ok
}

// Remove closes and forgets the session. It reports whether it existed.
func (s *Sessions) Remove(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return false
	}
	observability.EnrollmentSessions.Set(float64(n))
	if err := sess.Controller.Close(); err != nil {
		slog.Warn("close enrollment session", "session_id", id, "error", err)
	}
	return true
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range expired {
		if err := sess.Controller.Close(); err != nil {
			slog.Warn("close expired enrollment session", "session_id", sess.ID, "error", err)
		}
		slog.Info("enrollment session expired", "session_id", sess.ID)
	}
	if len(expired) > 0 {
		observability.EnrollmentSessions.Set(float64(n))
	}
	return len(expired)
}

// Run sweeps periodically until ctx is cancelled, then closes every session.
func (s *Sessions) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Sessions) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range all {
		_ = sess.Controller.Close()
	}
	observability.EnrollmentSessions.Set(0)
}
