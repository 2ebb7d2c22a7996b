package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestDispatcherRetriesOnlyDialFailures(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})

	var dialCalls, writeCalls atomic.Int32
	done := make(chan struct{}, 2)
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
	writeErr := &net.OpError{Op: "write", Net: "tcp", Err: errors.New("reset")}

	if err := d.Enqueue(context.Background(), "notify", "sendMessage", func() error {
		if dialCalls.Add(1) < 3 {
			return dialErr
		}
		done <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := d.Enqueue(context.Background(), "notify", "sendMessage", func() error {
		writeCalls.Add(1)
		done <- struct{}{}
		return writeErr
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("jobs did not finish")
		}
	}
	d.Close()

	if got := dialCalls.Load(); got != 3 {
		t.Fatalf("dial attempts = %d, want 3", got)
	}
	if got := writeCalls.Load(); got != 1 {
		t.Fatalf("write attempts = %d, want 1", got)
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("error count = %d, want 1", d.ErrorCount())
	}
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	if err := d.Enqueue(context.Background(), "notify", "sendMessage", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("enqueue after close = %v, want ErrQueueClosed", err)
	}
	d.Close()
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"timeout":   context.DeadlineExceeded,
		"dial":      &net.OpError{Op: "dial", Err: errors.New("refused")},
		"forbidden": tele.ErrBlockedByUser,
		"http_4xx":  tele.ErrChatNotFound,
		"http_5xx":  errors.New("telegram: internal server error (502)"),
		"flood":     &tele.Error{Code: 429, Description: "Too Many Requests"},
		"unknown":   errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestRedact(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAbb-cc_DD/sendMessage": dial tcp: refused`)
	got := redact(err)
	if got != `Post "https://api.telegram.org/bot<redacted>/sendMessage": dial tcp: refused` {
		t.Fatalf("unexpected sanitized message %q", got)
	}
}
