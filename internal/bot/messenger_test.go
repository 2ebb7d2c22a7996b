package bot

import (
	"context"
	"errors"
	"testing"

	tghelpers "github.com/m3rciful/systembot/core/telegram/helpers"
	"github.com/m3rciful/systembot/internal/action"
	"github.com/m3rciful/systembot/internal/flow"
	"github.com/m3rciful/systembot/internal/render"
	"github.com/m3rciful/systembot/internal/systems"

	tele "gopkg.in/telebot.v4"
)

type apiCall struct {
	to   tele.Recipient
	what interface{}
	opts []interface{}
}

type fakeAPI struct {
	sends   []apiCall
	edits   []apiCall
	deleted []tele.Editable
	sendErr []error
	editErr error
	nextID  int
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.sends = append(f.sends, apiCall{to: to, what: what, opts: opts})
	if len(f.sendErr) > 0 {
		err := f.sendErr[0]
		f.sendErr = f.sendErr[1:]
		if err != nil {
			return nil, err
		}
	}
	f.nextID++
	return &tele.Message{ID: f.nextID, Chat: &tele.Chat{ID: 77}}, nil
}

func (f *fakeAPI) Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.edits = append(f.edits, apiCall{what: what, opts: opts})
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &tele.Message{}, nil
}

func (f *fakeAPI) Delete(msg tele.Editable) error {
	f.deleted = append(f.deleted, msg)
	return nil
}

func confirmButton() render.Button {
	return render.Button{
		Text:   "Yes",
		Action: action.Action{Kind: action.RemoveConfirm, UserID: 42, System: "Loadout A"},
	}
}

func TestMarkupEncodesActions(t *testing.T) {
	markup, err := Markup([][]render.Button{{confirmButton()}})
	if err != nil {
		t.Fatalf("markup: %v", err)
	}
	if markup == nil || len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 1 {
		t.Fatalf("unexpected keyboard: %+v", markup)
	}
	btn := markup.InlineKeyboard[0][0]
	a, err := action.Decode(btn.Unique, btn.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Kind != action.RemoveConfirm || a.UserID != 42 || a.System != "Loadout A" {
		t.Fatalf("round trip = %+v", a)
	}

	if m, err := Markup(nil); m != nil || err != nil {
		t.Fatalf("empty rows = (%v, %v)", m, err)
	}

	bad := render.Button{Text: "x", Action: action.Action{Kind: action.RemoveConfirm}}
	if _, err := Markup([][]render.Button{{bad}}); err == nil {
		t.Fatal("expected encode error")
	}
}

func TestSendFollowsWithDocument(t *testing.T) {
	api := &fakeAPI{}
	m := NewMessenger(api, nil)
	ctx := tghelpers.WithSendCounters(context.Background())

	msg := render.Message{
		Text:     "hello",
		Buttons:  [][]render.Button{{confirmButton()}},
		Document: &systems.File{URL: "file-id", Name: "loadout.txt"},
	}
	ref, err := m.Send(ctx, 77, msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ref.ChatID != 77 || ref.MessageID != 1 {
		t.Fatalf("ref = %+v", ref)
	}
	if len(api.sends) != 2 {
		t.Fatalf("sends = %d, want 2", len(api.sends))
	}
	opts, ok := api.sends[0].opts[0].(*tele.SendOptions)
	if !ok || opts.ParseMode != tele.ModeMarkdownV2 || opts.ReplyMarkup == nil {
		t.Fatalf("text options = %+v", api.sends[0].opts)
	}
	doc, ok := api.sends[1].what.(*tele.Document)
	if !ok || doc.FileID != "file-id" || doc.FileName != "loadout.txt" {
		t.Fatalf("document = %#v", api.sends[1].what)
	}
	if n, kb := tghelpers.SendCounts(ctx); n != 2 || !kb {
		t.Fatalf("counters = (%d, %v)", n, kb)
	}
}

func TestSendDocumentFailureKeepsText(t *testing.T) {
	api := &fakeAPI{sendErr: []error{nil, errors.New("upload failed")}}
	m := NewMessenger(api, nil)
	msg := render.Message{Text: "hello", Document: &systems.File{URL: "f", Name: "a.txt"}}
	if _, err := m.Send(context.Background(), 77, msg); err != nil {
		t.Fatalf("document failure must not fail the send: %v", err)
	}
}

func TestSendClassifiesFailures(t *testing.T) {
	cases := []struct {
		err  error
		kind flow.DeliveryKind
	}{
		{tele.ErrBlockedByUser, flow.DeliveryUnreachable},
		{tele.ErrNotStartedByUser, flow.DeliveryUnreachable},
		{tele.ErrChatNotFound, flow.DeliveryUnreachable},
		{&tele.Error{Code: 403, Description: "Forbidden: bot can't initiate conversation"}, flow.DeliveryForbidden},
		{errors.New("connection reset"), flow.DeliveryOther},
	}
	for _, tc := range cases {
		api := &fakeAPI{sendErr: []error{tc.err}}
		_, err := NewMessenger(api, nil).SendPrivate(context.Background(), 5, render.Text("hi"))
		if got := flow.DeliveryKindOf(err); got != tc.kind {
			t.Fatalf("%v: kind = %q, want %q", tc.err, got, tc.kind)
		}
		if !errors.Is(err, tc.err) {
			t.Fatalf("%v: cause lost in %v", tc.err, err)
		}
	}
}

func TestEditIgnoresUnchangedContent(t *testing.T) {
	api := &fakeAPI{editErr: tele.ErrSameMessageContent}
	m := NewMessenger(api, nil)
	if err := m.Edit(context.Background(), flow.MessageRef{ChatID: 1, MessageID: 9}, render.Text("x")); err != nil {
		t.Fatalf("edit: %v", err)
	}
	opts := api.edits[0].opts[0].(*tele.SendOptions)
	if opts.ReplyMarkup != nil {
		t.Fatal("message without buttons must clear the keyboard")
	}

	api.editErr = tele.ErrBlockedByUser
	if err := m.Edit(context.Background(), flow.MessageRef{ChatID: 1, MessageID: 9}, render.Text("x")); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteAddressesStoredMessage(t *testing.T) {
	api := &fakeAPI{}
	if err := NewMessenger(api, nil).Delete(context.Background(), flow.MessageRef{ChatID: 3, MessageID: 12}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	id, chat := api.deleted[0].MessageSig()
	if id != "12" || chat != 3 {
		t.Fatalf("deleted (%s, %d)", id, chat)
	}
}

func TestNotifyWithoutDispatcherSendsDirectly(t *testing.T) {
	api := &fakeAPI{}
	NewMessenger(api, nil).Notify(context.Background(), 9, render.Text("timed out"))
	if len(api.sends) != 1 {
		t.Fatalf("sends = %d", len(api.sends))
	}
}
