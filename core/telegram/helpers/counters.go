package helpers

import (
	"context"
	"sync/atomic"
)

type countersKey struct{}

type sendCounters struct {
	messages atomic.Int64
	kb       atomic.Bool
}

// WithSendCounters attaches fresh per-update send counters to ctx.
func WithSendCounters(ctx context.Context) context.Context {
	return context.WithValue(ctx, countersKey{}, &sendCounters{})
}

// CountSent records one outbound message; withKeyboard marks that it carried
// an inline keyboard. It is a no-op when ctx carries no counters.
func CountSent(ctx context.Context, withKeyboard bool) {
	sc, _ := ctx.Value(countersKey{}).(*sendCounters)
	if sc == nil {
		return
	}
	sc.messages.Add(1)
	if withKeyboard {
		sc.kb.Store(true)
	}
}

// SendCounts reports the messages sent so far and whether any had a keyboard.
func SendCounts(ctx context.Context) (int, bool) {
	sc, _ := ctx.Value(countersKey{}).(*sendCounters)
	if sc == nil {
		return 0, false
	}
	return int(sc.messages.Load()), sc.kb.Load()
}
