package cooldown

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLimiter(t *testing.T) (*Limiter, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(7*time.Second, WithClock(clk.Now), WithoutSweeper())
	t.Cleanup(l.Close)
	return l, clk
}

func TestRemainingCountsDown(t *testing.T) {
	l, clk := newLimiter(t)
	if _, on := l.Remaining(1, "create"); on {
		t.Fatal("fresh limiter should not be cooling down")
	}
	l.Set(1, "create")
	if secs, on := l.Remaining(1, "create"); !on || secs != 7 {
		t.Fatalf("Remaining = %d, %v; want 7, true", secs, on)
	}
	clk.Advance(2500 * time.Millisecond)
	if secs, _ := l.Remaining(1, "create"); secs != 5 {
		t.Fatalf("Remaining = %d; want 5 (rounded up)", secs)
	}
	clk.Advance(5 * time.Second)
	if _, on := l.Remaining(1, "create"); on {
		t.Fatal("window should have expired")
	}
	if l.Len() != 0 {
		t.Fatalf("expired entry should be removed lazily, len=%d", l.Len())
	}
}

func TestOperationsAreIndependent(t *testing.T) {
	l, _ := newLimiter(t)
	l.Set(1, "create")
	if _, on := l.Remaining(1, "remove"); on {
		t.Fatal("cooldown leaked across operations")
	}
	if _, on := l.Remaining(2, "create"); on {
		t.Fatal("cooldown leaked across users")
	}
}

func TestClear(t *testing.T) {
	l, _ := newLimiter(t)
	l.Set(1, "create")
	l.Set(1, "send")
	l.Set(2, "send")
	l.Clear(1, "create")
	if _, on := l.Remaining(1, "create"); on {
		t.Fatal("create should be cleared")
	}
	if _, on := l.Remaining(1, "send"); !on {
		t.Fatal("send should remain")
	}
	l.Clear(1)
	if _, on := l.Remaining(1, "send"); on {
		t.Fatal("all entries of user 1 should be cleared")
	}
	if _, on := l.Remaining(2, "send"); !on {
		t.Fatal("user 2 must be untouched")
	}
}

func TestSweep(t *testing.T) {
	l, clk := newLimiter(t)
	l.Set(1, "a")
	l.Set(2, "b")
	clk.Advance(8 * time.Second)
	l.Set(3, "c")
	if n := l.Sweep(); n != 2 {
		t.Fatalf("swept %d, want 2", n)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
}

func TestCloseWithSweeper(t *testing.T) {
	l := New(0)
	if l.Window() != DefaultWindow {
		t.Fatalf("window = %v", l.Window())
	}
	l.Close()
	l.Close()
}
