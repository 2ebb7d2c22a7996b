// Package bot adapts the system workflows to Telegram: it registers the
// commands and button routes, turns updates into flow events and answers
// users the flows cannot reach themselves.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/systembot/core/logger"
	tg "github.com/m3rciful/systembot/core/telegram"
	"github.com/m3rciful/systembot/core/telegram/callbacks"
	"github.com/m3rciful/systembot/core/telegram/commands"
	tghelpers "github.com/m3rciful/systembot/core/telegram/helpers"
	"github.com/m3rciful/systembot/core/telegram/router"
	"github.com/m3rciful/systembot/internal/action"
	"github.com/m3rciful/systembot/internal/flow"
	"github.com/m3rciful/systembot/internal/metrics"
	"github.com/m3rciful/systembot/internal/render"
	"github.com/m3rciful/systembot/internal/systems"

	tele "gopkg.in/telebot.v4"
)

// Controller runs the flows. *flow.Controller implements it.
type Controller interface {
	Create(ctx context.Context, inv flow.Invocation, name, desc string) error
	Update(ctx context.Context, inv flow.Invocation, name string) error
	Remove(ctx context.Context, inv flow.Invocation, name string) error
	Send(ctx context.Context, inv flow.Invocation, to flow.Recipient, name string) error
	List(ctx context.Context, inv flow.Invocation) error
	HandleInteraction(ctx context.Context, in flow.Interaction) (flow.Ack, error)
	HandleMessage(ctx context.Context, in flow.Inbound) bool
}

// Usage lines shown when a command cannot be parsed.
const (
	UsageCreate = `/create name="<name>" description="<description>"`
	UsageUpdate = `/update system_name="<name>"`
	UsageRemove = `/remove system_name="<name>"`
	UsageSend   = `/send user=<id> system_name="<name>"`
)

// errUsage marks a command whose arguments did not parse.
var errUsage = errors.New("bot: bad command arguments")

// Bot binds a Controller to Telegram updates.
type Bot struct {
	ctl Controller
}

// New returns a Bot driving ctl.
func New(ctl Controller) *Bot {
	return &Bot{ctl: ctl}
}

type commandSpec struct {
	name  string
	desc  string
	usage string
	run   func(ctx context.Context, inv flow.Invocation, args Args, c tele.Context) error
}

func (b *Bot) commandSpecs() []commandSpec {
	return []commandSpec{
		{name: "create", desc: "Create a new system", usage: UsageCreate, run: b.create},
		{name: "update", desc: "Update an existing system", usage: UsageUpdate, run: b.update},
		{name: "remove", desc: "Remove a system", usage: UsageRemove, run: b.remove},
		{name: "send", desc: "Send a system to a user via DM", usage: UsageSend, run: b.send},
		{name: string(flow.KindList), desc: "List all systems", run: b.list},
	}
}

// Register adds the bot's commands and button routes to reg.
func (b *Bot) Register(reg *tg.Registry) error {
	for _, spec := range b.commandSpecs() {
		err := reg.RegisterCommand("/"+spec.name, commands.Command{
			Description: spec.desc,
			Handler:     b.command(spec),
		})
		if err != nil {
			return fmt.Errorf("bot: register command: %w", err)
		}
	}
	for _, unique := range action.Uniques() {
		if err := reg.RegisterCallback(unique, b.onCallback); err != nil {
			return fmt.Errorf("bot: register callback: %w", err)
		}
	}
	return nil
}

// Routes returns every route of the bot; call Register first.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg)
	routes = append(routes, router.CallbackRoute(reg))
	return append(routes, router.TextRoutes(b, reg, router.TextOptions{})...)
}

// Hooks answers updates the shared middleware chain stops before they reach
// a Bot.
func Hooks() tg.MiddlewareHooks {
	return tg.MiddlewareHooks{
		OnRejected: rejectUnauthorized,
		OnLimited:  answerLimited,
	}
}

func (b *Bot) command(spec commandSpec) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		inv := invocation(c)
		var payload string
		if m := c.Message(); m != nil {
			payload = m.Payload
		}

		args, err := ParseArgs(payload)
		if err != nil {
			err = fmt.Errorf("%w: %v", errUsage, err)
		} else {
			err = spec.run(ctx, inv, args, c)
		}
		if errors.Is(err, errUsage) {
			logger.Debug(ctx, component, "command.usage", slog.String("command", spec.name), logger.Err(err))
			if spec.usage != "" {
				_ = tghelpers.SendMDV2(c, render.Usage(spec.usage).Text)
			}
		}
		return finish(c, spec.name, err)
	}
}

func (b *Bot) create(ctx context.Context, inv flow.Invocation, args Args, _ tele.Context) error {
	name, desc := args.NameAndDescription()
	if name == "" {
		return errUsage
	}
	return b.ctl.Create(ctx, inv, name, desc)
}

func (b *Bot) update(ctx context.Context, inv flow.Invocation, args Args, _ tele.Context) error {
	name := args.Name()
	if name == "" {
		return errUsage
	}
	return b.ctl.Update(ctx, inv, name)
}

func (b *Bot) remove(ctx context.Context, inv flow.Invocation, args Args, _ tele.Context) error {
	name := args.Name()
	if name == "" {
		return errUsage
	}
	return b.ctl.Remove(ctx, inv, name)
}

func (b *Bot) send(ctx context.Context, inv flow.Invocation, args Args, c tele.Context) error {
	to, name := recipient(c.Message(), args)
	if name == "" {
		return errUsage
	}
	return b.ctl.Send(ctx, inv, to, name)
}

func (b *Bot) list(ctx context.Context, inv flow.Invocation, _ Args, _ tele.Context) error {
	return b.ctl.List(ctx, inv)
}

// onCallback handles every button press of the bot. Data that does not
// decode into a known action only gets the callback answered.
func (b *Bot) onCallback(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	cb := c.Callback()
	unique, payload := callbacks.ParseCallbackData(cb)
	a, err := action.Decode(unique, payload)
	if err != nil {
		logger.Debug(ctx, component, "callback.undecodable",
			slog.String("status", "noop"),
			slog.String("cb_key", unique),
			logger.Err(err),
		)
		c.Set(router.OutcomeKey, "ok")
		return c.Respond(&tele.CallbackResponse{})
	}

	in := flow.Interaction{
		UserID:   cb.Sender.ID,
		UserName: displayName(cb.Sender),
		Action:   a,
	}
	if cb.Message != nil {
		in.Message = flow.MessageRef{MessageID: cb.Message.ID}
		if cb.Message.Chat != nil {
			in.ChatID = cb.Message.Chat.ID
			in.Message.ChatID = cb.Message.Chat.ID
		}
	}

	ack, err := b.ctl.HandleInteraction(ctx, in)
	if rerr := c.Respond(&tele.CallbackResponse{Text: ack.Text, ShowAlert: ack.Alert}); rerr != nil {
		logger.Debug(ctx, component, "callback.respond_failed", logger.Err(rerr))
	}
	return finish(c, string(a.Kind), err)
}

// Offer hands a plain message to the flows waiting for one.
func (b *Bot) Offer(c tele.Context) bool {
	m := c.Message()
	if m == nil || c.Sender() == nil {
		return false
	}
	return b.ctl.HandleMessage(tghelpers.BuildContext(c), inbound(c.Sender(), m))
}

// finish records the outcome of a handled update. Errors the user has
// already been told about end here; anything else goes back to telebot.
func finish(c tele.Context, name string, err error) error {
	status := flow.Outcome(err)
	if errors.Is(err, errUsage) {
		status = "rejected"
	}
	metrics.ObserveCommand(name, status)
	c.Set(router.OutcomeKey, status)

	var fe *flow.Error
	if err == nil || errors.Is(err, errUsage) || (errors.As(err, &fe) && fe.Expected()) {
		return nil
	}
	return err
}

func rejectUnauthorized(c tele.Context) error {
	metrics.ObserveCommand("unauthorized", "rejected")
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: render.NoPermission, ShowAlert: true})
	}
	return tghelpers.SendText(c, render.NoPermission)
}

func answerLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{})
	}
	return nil
}

func invocation(c tele.Context) flow.Invocation {
	inv := flow.Invocation{}
	if u := c.Sender(); u != nil {
		inv.UserID = u.ID
		inv.UserName = displayName(u)
	}
	if ch := c.Chat(); ch != nil {
		inv.ChatID = ch.ID
		inv.Private = ch.Type == tele.ChatPrivate
	}
	return inv
}

func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName + " " + u.LastName))
	if name == "" && u.Username != "" {
		name = "@" + u.Username
	}
	return name
}

// recipient resolves the target of /send: the author of the replied-to
// message, a mentioned user without a username, or a numeric id in the
// arguments, in that order.
func recipient(m *tele.Message, args Args) (flow.Recipient, string) {
	id, name := args.UserAndName()
	if m == nil {
		return flow.Recipient{ID: id}, name
	}
	if r := m.ReplyTo; r != nil && r.Sender != nil && !r.Sender.IsBot {
		return flow.Recipient{ID: r.Sender.ID, Name: displayName(r.Sender)}, replyName(args, name)
	}
	for _, e := range m.Entities {
		if e.Type != tele.EntityTMention || e.User == nil {
			continue
		}
		mention := m.EntityText(e)
		rest := strings.TrimSpace(strings.Replace(m.Payload, mention, "", 1))
		a, err := ParseArgs(rest)
		if err != nil {
			return flow.Recipient{}, ""
		}
		return flow.Recipient{ID: e.User.ID, Name: displayName(e.User)}, a.Name()
	}
	return flow.Recipient{ID: id}, name
}

// replyName is the system name of a /send that targets a replied-to user:
// the whole argument text is the name unless a name pair was given.
func replyName(args Args, parsed string) string {
	if n, ok := args.Named("name"); ok {
		return n
	}
	if p := strings.TrimSpace(args.Positional()); p != "" {
		return p
	}
	return parsed
}

// inbound converts a Telegram message into a flow event. A document, or
// the largest size of a photo, becomes the attached file; the caption then
// stands in for the text.
func inbound(u *tele.User, m *tele.Message) flow.Inbound {
	in := flow.Inbound{
		UserID:  u.ID,
		Message: flow.MessageRef{MessageID: m.ID},
		Text:    m.Text,
	}
	if m.Chat != nil {
		in.ChatID = m.Chat.ID
		in.Message.ChatID = m.Chat.ID
	}
	switch {
	case m.Document != nil:
		in.File = &systems.File{
			URL:       m.Document.FileID,
			Name:      m.Document.FileName,
			SizeBytes: m.Document.FileSize,
		}
	case m.Photo != nil:
		in.File = &systems.File{
			URL:       m.Photo.FileID,
			Name:      "photo.jpg",
			SizeBytes: m.Photo.FileSize,
		}
	}
	if in.File != nil && in.Text == "" {
		in.Text = m.Caption
	}
	return in
}
