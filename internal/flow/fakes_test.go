package flow

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/systembot/internal/cooldown"
	"github.com/m3rciful/systembot/internal/pending"
	"github.com/m3rciful/systembot/internal/render"
	"github.com/m3rciful/systembot/internal/systems"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every due timer on the caller's goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

// Fire runs the callback of the i-th timer regardless of its state.
func (c *fakeClock) Fire(i int) {
	c.mu.Lock()
	t := c.timers[i]
	c.mu.Unlock()
	t.fn()
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type sent struct {
	op   string
	chat int64
	ref  MessageRef
	msg  render.Message
}

type fakeMessenger struct {
	mu         sync.Mutex
	nextID     int
	log        []sent
	privateErr error
	editErr    error
	// onPrivate runs at the start of every SendPrivate.
	onPrivate func(uid int64)
}

func (m *fakeMessenger) record(op string, chat int64, ref MessageRef, msg render.Message) MessageRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref.MessageID == 0 {
		m.nextID++
		ref = MessageRef{ChatID: chat, MessageID: m.nextID}
	}
	m.log = append(m.log, sent{op: op, chat: chat, ref: ref, msg: msg})
	return ref
}

func (m *fakeMessenger) SendPrivate(_ context.Context, uid int64, msg render.Message) (MessageRef, error) {
	m.mu.Lock()
	err, hook := m.privateErr, m.onPrivate
	m.mu.Unlock()
	if hook != nil {
		hook(uid)
	}
	if err != nil {
		return MessageRef{}, err
	}
	return m.record("private", uid, MessageRef{}, msg), nil
}

func (m *fakeMessenger) Send(_ context.Context, chat int64, msg render.Message) (MessageRef, error) {
	return m.record("send", chat, MessageRef{}, msg), nil
}

func (m *fakeMessenger) Edit(_ context.Context, ref MessageRef, msg render.Message) error {
	m.mu.Lock()
	err := m.editErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.record("edit", ref.ChatID, ref, msg)
	return nil
}

func (m *fakeMessenger) Delete(_ context.Context, ref MessageRef) error {
	m.record("delete", ref.ChatID, ref, render.Message{})
	return nil
}

func (m *fakeMessenger) all() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.log...)
}

func (m *fakeMessenger) last(t *testing.T) sent {
	t.Helper()
	all := m.all()
	if len(all) == 0 {
		t.Fatal("nothing was sent")
	}
	return all[len(all)-1]
}

// count returns how many messages contain substr.
func (m *fakeMessenger) count(substr string) int {
	n := 0
	for _, s := range m.all() {
		if strings.Contains(s.msg.Text, substr) {
			n++
		}
	}
	return n
}

type memStore struct {
	mu        sync.Mutex
	recs      map[string]systems.Record
	upserts   int
	failWrite error
}

func newMemStore(recs ...systems.Record) *memStore {
	s := &memStore{recs: make(map[string]systems.Record)}
	for _, r := range recs {
		s.recs[systems.Key(r.Name)] = r
	}
	return s
}

func (s *memStore) All(context.Context) ([]systems.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]systems.Record, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) Get(_ context.Context, name string) (systems.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[systems.Key(name)]
	return r.Clone(), ok, nil
}

func (s *memStore) Upsert(_ context.Context, rec systems.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return s.failWrite
	}
	s.upserts++
	s.recs[systems.Key(rec.Name)] = rec.Clone()
	return nil
}

func (s *memStore) Remove(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return false, s.failWrite
	}
	k := systems.Key(name)
	_, ok := s.recs[k]
	delete(s.recs, k)
	return ok, nil
}

const (
	alice int64 = 101
	bob   int64 = 202
	group int64 = -500
)

type harness struct {
	ctrl  *Controller
	clock *fakeClock
	msgr  *fakeMessenger
	store *memStore
}

func newHarness(t *testing.T, recs ...systems.Record) *harness {
	t.Helper()
	clock := newFakeClock()
	h := &harness{
		clock: clock,
		msgr:  &fakeMessenger{},
		store: newMemStore(recs...),
	}
	cool := cooldown.New(cooldown.DefaultWindow, cooldown.WithClock(clock.Now), cooldown.WithoutSweeper())
	h.ctrl = New(Options{
		Store:     h.store,
		Messenger: h.msgr,
		Pending:   pending.NewRegistry(),
		Cooldown:  cool,
		Clock:     clock,
		Timeout:   5 * time.Minute,
	})
	t.Cleanup(func() {
		h.ctrl.Close()
		cool.Close()
	})
	return h
}

func inv(uid, chat int64) Invocation {
	return Invocation{UserID: uid, UserName: "user", ChatID: chat, Private: uid == chat}
}

// press simulates uid pressing the button with text label on the message ref.
func (h *harness) press(t *testing.T, uid int64, s sent, label string) (Ack, error) {
	t.Helper()
	for _, row := range s.msg.Buttons {
		for _, b := range row {
			if strings.Contains(b.Text, label) {
				return h.ctrl.HandleInteraction(context.Background(), Interaction{
					UserID:  uid,
					ChatID:  s.ref.ChatID,
					Message: s.ref,
					Action:  b.Action,
				})
			}
		}
	}
	t.Fatalf("no button %q on message %q", label, s.msg.Text)
	return Ack{}, nil
}

func (h *harness) assertClean(t *testing.T) {
	t.Helper()
	if n := h.ctrl.Pending().Len(); n != 0 {
		t.Fatalf("pending entries left: %d (%+v)", n, h.ctrl.Pending().Snapshot())
	}
	if n := h.ctrl.Hub().Active(); n != 0 {
		t.Fatalf("subscriptions left: %d", n)
	}
	if n := h.ctrl.Tracker().Len(); n != 0 {
		t.Fatalf("sessions left: %d", n)
	}
	if n := h.clock.pending(); n != 0 {
		t.Fatalf("timers left: %d", n)
	}
}

func kindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

var fileA = systems.File{URL: "file-id-a", Name: "loadout.json", SizeBytes: 2048}
