package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	tg "github.com/m3rciful/systembot/core/telegram"
	"github.com/m3rciful/systembot/core/telegram/router"
	"github.com/m3rciful/systembot/internal/action"
	"github.com/m3rciful/systembot/internal/flow"
	"github.com/m3rciful/systembot/internal/render"

	tele "gopkg.in/telebot.v4"
)

type call struct {
	op   string
	inv  flow.Invocation
	to   flow.Recipient
	name string
	desc string
}

type fakeController struct {
	calls []call
	err   error

	interactions []flow.Interaction
	ack          flow.Ack

	inbound []flow.Inbound
	consume bool
}

func (f *fakeController) record(c call) error {
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeController) Create(_ context.Context, inv flow.Invocation, name, desc string) error {
	return f.record(call{op: "create", inv: inv, name: name, desc: desc})
}

func (f *fakeController) Update(_ context.Context, inv flow.Invocation, name string) error {
	return f.record(call{op: "update", inv: inv, name: name})
}

func (f *fakeController) Remove(_ context.Context, inv flow.Invocation, name string) error {
	return f.record(call{op: "remove", inv: inv, name: name})
}

func (f *fakeController) Send(_ context.Context, inv flow.Invocation, to flow.Recipient, name string) error {
	return f.record(call{op: "send", inv: inv, to: to, name: name})
}

func (f *fakeController) List(_ context.Context, inv flow.Invocation) error {
	return f.record(call{op: "list", inv: inv})
}

func (f *fakeController) HandleInteraction(_ context.Context, in flow.Interaction) (flow.Ack, error) {
	f.interactions = append(f.interactions, in)
	return f.ack, f.err
}

func (f *fakeController) HandleMessage(_ context.Context, in flow.Inbound) bool {
	f.inbound = append(f.inbound, in)
	return f.consume
}

// fakeContext implements the part of tele.Context the handlers use.
type fakeContext struct {
	tele.Context
	upd       tele.Update
	store     map[string]interface{}
	sent      []interface{}
	responses []*tele.CallbackResponse
}

func commandContext(text string) *fakeContext {
	_, payload, _ := strings.Cut(text, " ")
	return &fakeContext{
		upd: tele.Update{ID: 10, Message: &tele.Message{
			ID:      5,
			Text:    text,
			Payload: payload,
			Sender:  &tele.User{ID: 42, FirstName: "Ada", LastName: "L"},
			Chat:    &tele.Chat{ID: 42, Type: tele.ChatPrivate},
		}},
		store: map[string]interface{}{},
	}
}

func callbackContext(data string) *fakeContext {
	return &fakeContext{
		upd: tele.Update{ID: 11, Callback: &tele.Callback{
			Sender:  &tele.User{ID: 42, Username: "ada"},
			Data:    data,
			Message: &tele.Message{ID: 8, Chat: &tele.Chat{ID: -100}},
		}},
		store: map[string]interface{}{},
	}
}

func (f *fakeContext) Update() tele.Update         { return f.upd }
func (f *fakeContext) Message() *tele.Message      { return f.upd.Message }
func (f *fakeContext) Callback() *tele.Callback    { return f.upd.Callback }
func (f *fakeContext) Get(k string) interface{}    { return f.store[k] }
func (f *fakeContext) Set(k string, v interface{}) { f.store[k] = v }

func (f *fakeContext) Sender() *tele.User {
	if f.upd.Callback != nil {
		return f.upd.Callback.Sender
	}
	if f.upd.Message != nil {
		return f.upd.Message.Sender
	}
	return nil
}

func (f *fakeContext) Chat() *tele.Chat {
	if f.upd.Callback != nil && f.upd.Callback.Message != nil {
		return f.upd.Callback.Message.Chat
	}
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

func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

func (f *fakeContext) Respond(resp ...*tele.CallbackResponse) error {
	f.responses = append(f.responses, resp...)
	return nil
}

func registered(t *testing.T, ctl Controller) (*Bot, *tg.Registry) {
	t.Helper()
	b := New(ctl)
	reg := tg.NewRegistry()
	if err := b.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	return b, reg
}

func runCommand(t *testing.T, reg *tg.Registry, c *fakeContext) error {
	t.Helper()
	word, _, _ := strings.Cut(c.upd.Message.Text, " ")
	_, cmd, ok := reg.LookupCommand(word)
	if !ok {
		t.Fatalf("command %s not registered", word)
	}
	return cmd.Handler(c)
}

func TestRegisterCommandsAndCallbacks(t *testing.T) {
	_, reg := registered(t, &fakeController{})
	for _, name := range []string{"/create", "/update", "/remove", "/send", "/checksystems"} {
		if _, _, ok := reg.LookupCommand(name); !ok {
			t.Fatalf("%s not registered", name)
		}
	}
	if got := len(reg.ListCallbacks()); got != len(action.Uniques()) {
		t.Fatalf("callbacks = %d, want %d", got, len(action.Uniques()))
	}
}

func TestCreateCommandParsesArguments(t *testing.T) {
	ctl := &fakeController{}
	_, reg := registered(t, ctl)
	c := commandContext(`/create name="Loadout A" description="PvP build"`)
	if err := runCommand(t, reg, c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(ctl.calls) != 1 {
		t.Fatalf("calls = %+v", ctl.calls)
	}
	got := ctl.calls[0]
	if got.op != "create" || got.name != "Loadout A" || got.desc != "PvP build" {
		t.Fatalf("call = %+v", got)
	}
	if got.inv.UserID != 42 || got.inv.ChatID != 42 || !got.inv.Private || got.inv.UserName != "Ada L" {
		t.Fatalf("invocation = %+v", got.inv)
	}
	if c.store[router.OutcomeKey] != "ok" {
		t.Fatalf("outcome = %v", c.store[router.OutcomeKey])
	}
}

func TestUsageReplyOnBadArguments(t *testing.T) {
	for _, text := range []string{"/create", `/update system_name="open`, "/remove   "} {
		ctl := &fakeController{}
		_, reg := registered(t, ctl)
		c := commandContext(text)
		if err := runCommand(t, reg, c); err != nil {
			t.Fatalf("%s: handler: %v", text, err)
		}
		if len(ctl.calls) != 0 {
			t.Fatalf("%s: controller called: %+v", text, ctl.calls)
		}
		if len(c.sent) != 1 || !strings.Contains(c.sent[0].(string), "Usage") {
			t.Fatalf("%s: sent = %v", text, c.sent)
		}
		if c.store[router.OutcomeKey] != "rejected" {
			t.Fatalf("%s: outcome = %v", text, c.store[router.OutcomeKey])
		}
	}
}

func TestExpectedFlowErrorsAreSwallowed(t *testing.T) {
	ctl := &fakeController{err: &flow.Error{Kind: flow.KindValidation, Reason: "duplicate"}}
	_, reg := registered(t, ctl)
	c := commandContext(`/create name="A"`)
	if err := runCommand(t, reg, c); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if c.store[router.OutcomeKey] != "rejected" {
		t.Fatalf("outcome = %v", c.store[router.OutcomeKey])
	}

	boom := errors.New("boom")
	ctl.err = boom
	if err := runCommand(t, reg, commandContext(`/create name="A"`)); !errors.Is(err, boom) {
		t.Fatalf("unexpected failures must surface, got %v", err)
	}
}

func TestSendRecipientSources(t *testing.T) {
	ctl := &fakeController{}
	_, reg := registered(t, ctl)

	if err := runCommand(t, reg, commandContext(`/send user=7 system_name="Loadout A"`)); err != nil {
		t.Fatal(err)
	}
	reply := commandContext("/send Loadout A")
	reply.upd.Message.ReplyTo = &tele.Message{Sender: &tele.User{ID: 9, FirstName: "Bob"}}
	if err := runCommand(t, reg, reply); err != nil {
		t.Fatal(err)
	}

	text := "/send Carol Loadout A"
	mention := commandContext(text)
	mention.upd.Message.Entities = []tele.MessageEntity{{
		Type:   tele.EntityTMention,
		Offset: len("/send "),
		Length: len("Carol"),
		User:   &tele.User{ID: 11, FirstName: "Carol"},
	}}
	if err := runCommand(t, reg, mention); err != nil {
		t.Fatal(err)
	}

	want := []flow.Recipient{{ID: 7}, {ID: 9, Name: "Bob"}, {ID: 11, Name: "Carol"}}
	if len(ctl.calls) != len(want) {
		t.Fatalf("calls = %+v", ctl.calls)
	}
	for i, w := range want {
		got := ctl.calls[i]
		if got.to != w || got.name != "Loadout A" {
			t.Fatalf("call %d = %+v, want recipient %+v", i, got, w)
		}
	}
}

func TestSendWithoutRecipientReachesController(t *testing.T) {
	ctl := &fakeController{}
	_, reg := registered(t, ctl)
	if err := runCommand(t, reg, commandContext("/send Loadout A")); err != nil {
		t.Fatal(err)
	}
	if len(ctl.calls) != 1 || ctl.calls[0].to.ID != 0 {
		t.Fatalf("calls = %+v", ctl.calls)
	}
}

func TestCallbackDispatch(t *testing.T) {
	ctl := &fakeController{ack: flow.Ack{Text: render.NotOwner, Alert: true}}
	b, _ := registered(t, ctl)

	unique, payload, err := action.Encode(action.Action{Kind: action.RemoveConfirm, UserID: 42, System: "Loadout A"})
	if err != nil {
		t.Fatal(err)
	}
	c := callbackContext("\f" + unique + "|" + payload)
	if err := b.onCallback(c); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if len(ctl.interactions) != 1 {
		t.Fatalf("interactions = %+v", ctl.interactions)
	}
	in := ctl.interactions[0]
	if in.UserID != 42 || in.UserName != "@ada" || in.ChatID != -100 || in.Message.MessageID != 8 || in.Action.System != "Loadout A" {
		t.Fatalf("interaction = %+v", in)
	}
	if len(c.responses) != 1 || c.responses[0].Text != render.NotOwner || !c.responses[0].ShowAlert {
		t.Fatalf("responses = %+v", c.responses)
	}
}

func TestMalformedCallbackOnlyAnswers(t *testing.T) {
	ctl := &fakeController{}
	b, _ := registered(t, ctl)
	c := callbackContext("\frm_ok|zz")
	if err := b.onCallback(c); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if len(ctl.interactions) != 0 || len(c.responses) != 1 {
		t.Fatalf("interactions %d responses %d", len(ctl.interactions), len(c.responses))
	}
}

func TestOfferConvertsAttachments(t *testing.T) {
	ctl := &fakeController{consume: true}
	b := New(ctl)
	c := commandContext("")
	c.upd.Message.Text = ""
	c.upd.Message.Caption = "new build"
	c.upd.Message.Document = &tele.Document{File: tele.File{FileID: "doc-1", FileSize: 2048}, FileName: "build.txt"}
	if !b.Offer(c) {
		t.Fatal("expected message to be consumed")
	}
	in := ctl.inbound[0]
	if in.File == nil || in.File.URL != "doc-1" || in.File.Name != "build.txt" || in.File.SizeBytes != 2048 {
		t.Fatalf("file = %+v", in.File)
	}
	if in.Text != "new build" || in.UserID != 42 || in.ChatID != 42 || in.Message.MessageID != 5 {
		t.Fatalf("inbound = %+v", in)
	}
}

func TestHooksAnswerRejectedUpdates(t *testing.T) {
	hooks := Hooks()

	cb := callbackContext("\frm_ok|1|n|A")
	if err := hooks.OnRejected(cb); err != nil {
		t.Fatal(err)
	}
	if len(cb.responses) != 1 || cb.responses[0].Text != render.NoPermission {
		t.Fatalf("responses = %+v", cb.responses)
	}

	msg := commandContext("/create")
	if err := hooks.OnRejected(msg); err != nil {
		t.Fatal(err)
	}
	if len(msg.sent) != 1 || msg.sent[0] != render.NoPermission {
		t.Fatalf("sent = %v", msg.sent)
	}
}
