package flow

import (
	"context"
	"testing"
)

func TestHubArmReplacesSameKey(t *testing.T) {
	var observed []int
	h := NewHub(func(n int) { observed = append(observed, n) })
	var hits []string
	first := h.Arm(Subscription{Kind: KindCreate, UserID: 1, ChatID: 1, Handle: func(context.Context, Inbound) Verdict {
		hits = append(hits, "first")
		return Consume
	}})
	h.Arm(Subscription{Kind: KindCreate, UserID: 1, ChatID: 1, Handle: func(context.Context, Inbound) Verdict {
		hits = append(hits, "second")
		return Consume
	}})
	if h.Active() != 1 || h.Armed(first) {
		t.Fatalf("expected only the newer subscription, active=%d", h.Active())
	}
	if h.Revoke(first) {
		t.Fatal("revoking a replaced token reports false")
	}
	h.Deliver(context.Background(), Inbound{UserID: 1, ChatID: 1})
	if len(hits) != 1 || hits[0] != "second" {
		t.Fatalf("hits = %v", hits)
	}
	if h.Active() != 0 {
		t.Fatal("consumed subscription must be gone")
	}
	if len(observed) == 0 || observed[len(observed)-1] != 0 {
		t.Fatalf("observer saw %v", observed)
	}
}

func TestHubDeliverFiltersAndRetains(t *testing.T) {
	h := NewHub(nil)
	calls := 0
	tok := h.Arm(Subscription{
		Kind: KindUpdate, UserID: 1, ChatID: 10,
		Match: func(in Inbound) bool { return in.Text != "" },
		Handle: func(_ context.Context, in Inbound) Verdict {
			calls++
			if in.Text == "again" {
				return Retain
			}
			return Consume
		},
	})
	ctx := context.Background()
	if h.Deliver(ctx, Inbound{UserID: 2, ChatID: 10, Text: "x"}) {
		t.Fatal("other user matched")
	}
	if h.Deliver(ctx, Inbound{UserID: 1, ChatID: 11, Text: "x"}) {
		t.Fatal("other chat matched")
	}
	if h.Deliver(ctx, Inbound{UserID: 1, ChatID: 10}) {
		t.Fatal("predicate ignored")
	}
	if !h.Deliver(ctx, Inbound{UserID: 1, ChatID: 10, Text: "again"}) || !h.Armed(tok) {
		t.Fatal("retained subscription should stay armed")
	}
	if !h.Deliver(ctx, Inbound{UserID: 1, ChatID: 10, Text: "done"}) || h.Armed(tok) {
		t.Fatal("consumed subscription should be revoked")
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
	if h.Revoke(tok) {
		t.Fatal("double revoke reports false")
	}
}

func TestHubBusySubscriptionSkipsReentry(t *testing.T) {
	h := NewHub(nil)
	ctx := context.Background()
	nested := true
	h.Arm(Subscription{Kind: KindCreate, UserID: 1, ChatID: 1, Handle: func(ctx context.Context, in Inbound) Verdict {
		nested = h.Deliver(ctx, in)
		return Consume
	}})
	h.Deliver(ctx, Inbound{UserID: 1, ChatID: 1})
	if nested {
		t.Fatal("a busy subscription must not receive a second message")
	}
}

func TestHubPrefersMostRecent(t *testing.T) {
	h := NewHub(nil)
	var got Kind
	for _, k := range []Kind{KindCreate, KindUpdate} {
		k := k
		h.Arm(Subscription{Kind: k, UserID: 1, ChatID: 1, Handle: func(context.Context, Inbound) Verdict {
			got = k
			return Consume
		}})
	}
	h.Deliver(context.Background(), Inbound{UserID: 1, ChatID: 1})
	if got != KindUpdate {
		t.Fatalf("delivered to %s, want update", got)
	}
}
