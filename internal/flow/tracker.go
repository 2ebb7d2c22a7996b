package flow

import (
	"context"
	"sync"
	"time"

	"github.com/m3rciful/systembot/core/logger"
)

// SessionSpec describes a session to begin.
type SessionSpec struct {
	ID     string
	Kind   Kind
	UserID int64
	ChatID int64
	System string
	State  State
	// WantsFile marks sessions whose next input must be an attachment.
	WantsFile bool
	// OnTimeout runs once, off the tracker lock, when the flow expires. from
	// is the state the session was in.
	OnTimeout func(s *Session, from State)
	// Setup runs under the tracker lock once the session is current, so
	// state it records is ordered with the session that owns it.
	Setup func()
	// Release runs exactly once when the session ends for any reason.
	Release func()
}

// Session is one live create or update flow of a user.
type Session struct {
	ID        string
	Kind      Kind
	UserID    int64
	ChatID    int64
	System    string
	WantsFile bool
	StartedAt time.Time

	// guarded by Tracker.mu
	state     State
	busy      bool
	ended     bool
	token     Token
	timer     Timer
	onTimeout func(*Session, State)
	release   func()
}

type sessionKey struct {
	user int64
	kind Kind
}

// Tracker owns the live sessions, at most one per (user, kind), and the
// single flow timeout armed for each.
type Tracker struct {
	clock   Clock
	hub     *Hub
	timeout time.Duration

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewTracker returns a tracker that arms timeout for every session.
func NewTracker(clock Clock, hub *Hub, timeout time.Duration) *Tracker {
	if clock == nil {
		clock = SystemClock
	}
	return &Tracker{
		clock:    clock,
		hub:      hub,
		timeout:  timeout,
		sessions: make(map[sessionKey]*Session),
	}
}

// Timeout returns the flow timeout.
func (t *Tracker) Timeout() time.Duration { return t.timeout }

// Begin starts a session, ending any prior session of the same key as
// cancelled, and arms its timeout.
func (t *Tracker) Begin(spec SessionSpec) *Session {
	s := &Session{
		ID:        spec.ID,
		Kind:      spec.Kind,
		UserID:    spec.UserID,
		ChatID:    spec.ChatID,
		System:    spec.System,
		WantsFile: spec.WantsFile,
		StartedAt: t.clock.Now(),
		state:     spec.State,
		onTimeout: spec.OnTimeout,
		release:   spec.Release,
	}
	k := sessionKey{spec.UserID, spec.Kind}

	t.mu.Lock()
	prev := t.sessions[k]
	var prevCleanup func()
	if prev != nil {
		prevCleanup = t.endLocked(prev, StateCancelled)
	}
	t.sessions[k] = s
	if spec.Setup != nil {
		spec.Setup()
	}
	s.timer = t.clock.AfterFunc(t.timeout, func() { t.expire(s) })
	t.mu.Unlock()

	if prevCleanup != nil {
		prevCleanup()
	}
	return s
}

// Current returns the live session of (kind, user), or nil.
func (t *Tracker) Current(kind Kind, uid int64) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[sessionKey{uid, kind}]
}

// State returns the current state of s.
func (t *Tracker) State(s *Session) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return s.state
}

// Len returns the number of live sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Arm attaches sub to s, replacing the subscription it held before. It
// returns false when s already ended.
func (t *Tracker) Arm(s *Session, sub Subscription) bool {
	t.mu.Lock()
	if s.ended {
		t.mu.Unlock()
		return false
	}
	old := s.token
	s.token = t.hub.Arm(sub)
	t.mu.Unlock()
	if old != "" {
		t.hub.Revoke(old)
	}
	return true
}

// Disarm revokes the subscription of s, if any.
func (t *Tracker) Disarm(s *Session) {
	t.mu.Lock()
	tok := s.token
	s.token = ""
	t.mu.Unlock()
	if tok != "" {
		t.hub.Revoke(tok)
	}
}

// Step moves s from → to. It fails with ErrStaleTransition unless s is
// current, idle and in from.
func (t *Tracker) Step(s *Session, from, to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLocked(s, from, to); err != nil {
		return err
	}
	s.state = to
	return nil
}

// Claim reserves s for a terminal move out of from. While claimed the
// timeout cannot fire and no other Claim or Step succeeds; the caller must
// Finish the session.
func (t *Tracker) Claim(s *Session, from State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLocked(s, from, StateCommitted); err != nil {
		return err
	}
	s.busy = true
	return nil
}

func (t *Tracker) checkLocked(s *Session, from, to State) error {
	if s.ended || s.busy || t.sessions[sessionKey{s.UserID, s.Kind}] != s || s.state != from {
		return ErrStaleTransition
	}
	return checkTransition(from, to)
}

// Finish ends s with a terminal outcome and releases it. It reports false
// when s had already ended.
func (t *Tracker) Finish(s *Session, outcome State) bool {
	if !outcome.Terminal() {
		outcome = StateFailed
	}
	t.mu.Lock()
	if s.ended {
		t.mu.Unlock()
		return false
	}
	cleanup := t.endLocked(s, outcome)
	t.mu.Unlock()
	cleanup()
	return true
}

// Close ends every live session, stopping all timers.
func (t *Tracker) Close() {
	t.mu.Lock()
	var cleanups []func()
	for _, s := range t.sessions {
		cleanups = append(cleanups, t.endLocked(s, StateCancelled))
	}
	t.mu.Unlock()
	for _, c := range cleanups {
		c()
	}
}

func (t *Tracker) expire(s *Session) {
	t.mu.Lock()
	if s.ended || s.busy || t.sessions[sessionKey{s.UserID, s.Kind}] != s {
		t.mu.Unlock()
		return
	}
	from := s.state
	cleanup := t.endLocked(s, StateTimedOut)
	onTimeout := s.onTimeout
	t.mu.Unlock()

	cleanup()
	if onTimeout != nil {
		onTimeout(s, from)
	}
}

// endLocked marks s ended and returns the work to run after unlocking.
func (t *Tracker) endLocked(s *Session, outcome State) func() {
	s.ended = true
	s.busy = false
	s.state = outcome
	k := sessionKey{s.UserID, s.Kind}
	if t.sessions[k] == s {
		delete(t.sessions, k)
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	tok, release := s.token, s.release
	s.token, s.release = "", nil
	return func() {
		if tok != "" {
			t.hub.Revoke(tok)
		}
		if release != nil {
			release()
		}
	}
}

// sessionContext derives the context a timer callback logs with.
func sessionContext(s *Session) context.Context {
	ctx := logger.WithUpdateMeta(context.Background(), 0, s.UserID, s.ChatID)
	return logger.WithFlowID(ctx, s.ID)
}
