package middleware

import (
	"errors"
	"testing"
	"time"

	tghelpers "github.com/m3rciful/systembot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// fakeContext implements the slice of tele.Context the middleware touches.
type fakeContext struct {
	tele.Context
	upd   tele.Update
	store map[string]interface{}
	sent  []interface{}
}

func newMessage(userID int64, text string) *fakeContext {
	return &fakeContext{
		upd: tele.Update{ID: 1, Message: &tele.Message{
			Text:   text,
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		}},
		store: map[string]interface{}{},
	}
}

func newCallback(userID int64) *fakeContext {
	return &fakeContext{
		upd: tele.Update{ID: 2, Callback: &tele.Callback{
			Sender: &tele.User{ID: userID},
			Data:   "\frm_ok|1|n|A",
		}},
		store: map[string]interface{}{},
	}
}

func (f *fakeContext) Update() tele.Update { return f.upd }

func (f *fakeContext) Sender() *tele.User {
	switch {
	case f.upd.Callback != nil:
		return f.upd.Callback.Sender
	case f.upd.Message != nil:
		return f.upd.Message.Sender
	}
	return nil
}

func (f *fakeContext) Chat() *tele.Chat {
	if f.upd.Message != nil {
		return f.upd.Message.Chat
	}
	return nil
}

func (f *fakeContext) Text() string {
	if f.upd.Message != nil {
		return f.upd.Message.Text
	}
	return ""
}

func (f *fakeContext) Callback() *tele.Callback { return f.upd.Callback }

func (f *fakeContext) Get(key string) interface{}    { return f.store[key] }
func (f *fakeContext) Set(key string, v interface{}) { f.store[key] = v }
func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

func countingHandler(n *int) tele.HandlerFunc {
	return func(tele.Context) error {
		*n++
		return nil
	}
}

func TestAllowListMiddleware(t *testing.T) {
	rejected := 0
	mw := AllowListMiddleware(AllowListOptions{
		Users:    []int64{42},
		OnReject: countingHandler(&rejected),
	})
	passed := 0
	h := mw(countingHandler(&passed))

	for _, c := range []*fakeContext{newMessage(42, "/create A"), newCallback(42), newMessage(42, "hello")} {
		if err := h(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
	}
	if passed != 3 || rejected != 0 {
		t.Fatalf("allowed user: passed=%d rejected=%d", passed, rejected)
	}

	passed = 0
	for _, c := range []*fakeContext{newMessage(7, "/create A"), newCallback(7), newMessage(7, "hello")} {
		if err := h(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
	}
	if passed != 0 {
		t.Fatalf("unknown user reached the handler %d times", passed)
	}
	if rejected != 2 {
		t.Fatalf("rejected = %d, want 2 (command and callback, not the plain message)", rejected)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Unix(1000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: countingHandler(&limited),
		Now:       func() time.Time { return now },
	})
	passed := 0
	h := mw(countingHandler(&passed))

	_ = h(newMessage(1, "a"))
	_ = h(newMessage(1, "b"))
	_ = h(newCallback(1))
	_ = h(newMessage(2, "c"))
	now = now.Add(2 * time.Second)
	_ = h(newMessage(1, "d"))

	if passed != 4 || limited != 1 {
		t.Fatalf("passed=%d limited=%d, want 4 and 1", passed, limited)
	}
}

func TestRecoverMiddlewareReturnsError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(newMessage(1, "x")); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	plain := errors.New("plain")
	h = RecoverMiddleware(func(tele.Context) error { return plain })
	if err := h(newMessage(1, "x")); !errors.Is(err, plain) {
		t.Fatalf("err = %v, want plain", err)
	}
}

func TestMessageMetricsCountsSends(t *testing.T) {
	c := newMessage(1, "x")
	h := MessageMetricsMiddleware(func(mc tele.Context) error {
		if err := mc.Send("one"); err != nil {
			return err
		}
		if err := mc.Send("two", &tele.ReplyMarkup{}); err != nil {
			return err
		}
		tghelpers.CountSent(tghelpers.BuildContext(mc), false)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	msgs, kb := GetCounters(c)
	if msgs != 3 || !kb {
		t.Fatalf("counters = (%d, %v), want (3, true)", msgs, kb)
	}
}

func TestSeenWindowForgetsOldest(t *testing.T) {
	w := newSeenWindow(2)
	if !w.first(1) || !w.first(2) {
		t.Fatal("fresh ids must be first")
	}
	if w.first(1) {
		t.Fatal("id 1 seen twice")
	}
	w.first(3)
	if !w.first(1) {
		t.Fatal("id 1 should have been evicted by 3")
	}
}

func TestLoggerMiddlewareStoresContext(t *testing.T) {
	c := newMessage(5, "hello")
	h := LoggerMiddleware(func(tele.Context) error { return nil })
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if _, ok := tghelpers.ContextFrom(c); !ok {
		t.Fatal("logging context not stored")
	}
}
