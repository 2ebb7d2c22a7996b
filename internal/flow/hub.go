package flow

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Verdict tells the hub what to do with a subscription after its handler ran.
type Verdict int

const (
	// Consume revokes the subscription.
	Consume Verdict = iota
	// Retain keeps the subscription armed for the next message.
	Retain
)

// Token identifies one armed subscription.
type Token string

// Subscription listens for the next message of UserID in ChatID that Match
// accepts.
type Subscription struct {
	Kind   Kind
	UserID int64
	ChatID int64
	Match  func(Inbound) bool
	Handle func(context.Context, Inbound) Verdict
}

type entry struct {
	token Token
	seq   uint64
	sub   Subscription
	busy  bool
}

type subKey struct {
	user int64
	kind Kind
}

// Hub routes inbound messages to at most one subscription per (user, kind).
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	byKey   map[subKey]*entry
	byToken map[Token]*entry

	onChange func(active int)
}

// NewHub returns an empty hub. onChange, when set, observes the number of
// armed subscriptions after every change.
func NewHub(onChange func(active int)) *Hub {
	return &Hub{
		byKey:    make(map[subKey]*entry),
		byToken:  make(map[Token]*entry),
		onChange: onChange,
	}
}

// Arm registers sub, replacing any subscription of the same (user, kind).
func (h *Hub) Arm(sub Subscription) Token {
	h.mu.Lock()
	k := subKey{sub.UserID, sub.Kind}
	if old, ok := h.byKey[k]; ok {
		delete(h.byToken, old.token)
	}
	h.seq++
	e := &entry{token: Token(uuid.NewString()), seq: h.seq, sub: sub}
	h.byKey[k] = e
	h.byToken[e.token] = e
	n := len(h.byToken)
	h.mu.Unlock()
	h.notify(n)
	return e.token
}

// Revoke removes the subscription identified by tok. Unknown or already
// revoked tokens are ignored.
func (h *Hub) Revoke(tok Token) bool {
	h.mu.Lock()
	e, ok := h.byToken[tok]
	if ok {
		delete(h.byToken, tok)
		k := subKey{e.sub.UserID, e.sub.Kind}
		if h.byKey[k] == e {
			delete(h.byKey, k)
		}
	}
	n := len(h.byToken)
	h.mu.Unlock()
	if ok {
		h.notify(n)
	}
	return ok
}

// Active returns the number of armed subscriptions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byToken)
}

// Armed reports whether tok is still armed.
func (h *Hub) Armed(tok Token) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.byToken[tok]
	return ok
}

// Deliver hands in to the most recently armed idle subscription of the same
// user and chat whose predicate accepts it. It reports whether a handler ran.
// The subscription is busy while its handler runs, so a duplicate message
// cannot drive the same step twice.
func (h *Hub) Deliver(ctx context.Context, in Inbound) bool {
	h.mu.Lock()
	var pick *entry
	for _, e := range h.byToken {
		if e.busy || e.sub.UserID != in.UserID || e.sub.ChatID != in.ChatID {
			continue
		}
		if e.sub.Match != nil && !e.sub.Match(in) {
			continue
		}
		if pick == nil || e.seq > pick.seq {
			pick = e
		}
	}
	if pick == nil {
		h.mu.Unlock()
		return false
	}
	pick.busy = true
	h.mu.Unlock()

	verdict := Consume
	func() {
		defer func() {
			if r := recover(); r != nil {
				h.Revoke(pick.token)
				panic(r)
			}
		}()
		verdict = pick.sub.Handle(ctx, in)
	}()

	if verdict == Consume {
		h.Revoke(pick.token)
		return true
	}
	h.mu.Lock()
	pick.busy = false
	h.mu.Unlock()
	return true
}

func (h *Hub) notify(n int) {
	if h.onChange != nil {
		h.onChange(n)
	}
}
