// Package flow runs the conversational flows of the bot: create, update,
// remove, send and list. Handlers arrive on concurrent goroutines; every
// shared structure here is safe for concurrent use.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/systembot/core/logger"
	"github.com/m3rciful/systembot/internal/action"
	"github.com/m3rciful/systembot/internal/cooldown"
	"github.com/m3rciful/systembot/internal/metrics"
	"github.com/m3rciful/systembot/internal/pending"
	"github.com/m3rciful/systembot/internal/render"
	"github.com/m3rciful/systembot/internal/systems"
)

const component = "flow"

// DefaultTimeout bounds every create and update flow.
const DefaultTimeout = 5 * time.Minute

// Options wires a Controller.
type Options struct {
	Store     systems.Store
	Messenger Messenger
	Pending   *pending.Registry
	Cooldown  *cooldown.Limiter
	Clock     Clock
	Timeout   time.Duration
}

// Controller drives every flow against a store and a messenger.
type Controller struct {
	store   systems.Store
	msgr    Messenger
	pending *pending.Registry
	cool    *cooldown.Limiter
	clock   Clock
	hub     *Hub
	tracker *Tracker
}

// New builds a controller. Pending, Cooldown, Clock and Timeout default when unset.
func New(opts Options) *Controller {
	if opts.Pending == nil {
		opts.Pending = pending.NewRegistry()
	}
	if opts.Cooldown == nil {
		opts.Cooldown = cooldown.New(cooldown.DefaultWindow)
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	hub := NewHub(metrics.SetActiveSubscriptions)
	return &Controller{
		store:   opts.Store,
		msgr:    opts.Messenger,
		pending: opts.Pending,
		cool:    opts.Cooldown,
		clock:   opts.Clock,
		hub:     hub,
		tracker: NewTracker(opts.Clock, hub, opts.Timeout),
	}
}

// Hub exposes the message subscriptions.
func (c *Controller) Hub() *Hub { return c.hub }

// Tracker exposes the live sessions.
func (c *Controller) Tracker() *Tracker { return c.tracker }

// Pending exposes the pending-operation registry.
func (c *Controller) Pending() *pending.Registry { return c.pending }

// Close ends every live flow and stops its timer.
func (c *Controller) Close() {
	c.tracker.Close()
}

// HandleMessage offers a plain message to the armed subscriptions. It
// reports whether the message was taken by a flow.
func (c *Controller) HandleMessage(ctx context.Context, in Inbound) bool {
	if c.hub.Deliver(ctx, in) {
		return true
	}
	if in.File != nil {
		return false
	}
	for _, k := range []Kind{KindCreate, KindUpdate} {
		s := c.tracker.Current(k, in.UserID)
		if s == nil || !s.WantsFile || s.ChatID != in.ChatID {
			continue
		}
		if st := c.tracker.State(s); st != StateAwaitingFile && st != StateAwaitingInput {
			continue
		}
		c.reply(flowContext(ctx, s.ID), in.ChatID, render.NoFileAttached())
		return true
	}
	return false
}

// HandleInteraction dispatches a button press. Presses by anyone other than
// the user encoded in the action are rejected before any state is touched.
func (c *Controller) HandleInteraction(ctx context.Context, in Interaction) (Ack, error) {
	if in.Action.UserID != in.UserID {
		logger.Warn(ctx, component, "interaction.identity_mismatch",
			slog.String("status", "rejected"),
			slog.String("action", string(in.Action.Kind)),
			slog.Int64("owner_id", in.Action.UserID),
		)
		return Ack{Text: render.NotOwner, Alert: true}, permissionError("not_owner")
	}
	switch in.Action.Kind {
	case action.CreateConfirm:
		return c.confirmCreate(ctx, in)
	case action.CreateCancel:
		return c.cancelCreate(ctx, in)
	case action.UpdateSelect:
		return c.selectUpdateField(ctx, in)
	case action.UpdateConfirm:
		return c.confirmUpdate(ctx, in)
	case action.UpdateCancel:
		return c.cancelUpdate(ctx, in)
	case action.RemoveConfirm:
		return c.confirmRemove(ctx, in)
	case action.RemoveCancel:
		return c.cancelRemove(ctx, in)
	}
	logger.Debug(ctx, component, "interaction.unknown", slog.String("action", string(in.Action.Kind)))
	return Ack{}, nil
}

// Outcome maps an error returned by the controller onto a log/metric outcome.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var fe *Error
	if !errors.As(err, &fe) {
		return "fail"
	}
	switch {
	case fe.Kind == KindValidation && fe.Reason == "cooldown":
		return "rate_limited"
	case fe.Kind == KindValidation || fe.Kind == KindPermission:
		return "rejected"
	case fe.Kind == KindTimeout:
		return "timed_out"
	}
	return "fail"
}

func flowContext(ctx context.Context, id string) context.Context {
	return logger.WithFlowID(ctx, id)
}

func (c *Controller) checkCooldown(ctx context.Context, inv Invocation, k Kind) error {
	secs, on := c.cool.Remaining(inv.UserID, string(k))
	if !on {
		return nil
	}
	c.reply(ctx, inv.ChatID, render.Cooldown(secs))
	return c.observe(ctx, k, &Error{Kind: KindValidation, Reason: "cooldown"})
}

// reject tells the user why input was refused and records the outcome.
func (c *Controller) reject(ctx context.Context, chatID int64, k Kind, reason string, msg render.Message) error {
	c.reply(ctx, chatID, msg)
	return c.observe(ctx, k, validationError(reason, ""))
}

// observe records the outcome of a flow step that ended the flow.
func (c *Controller) observe(ctx context.Context, k Kind, err error, attrs ...slog.Attr) error {
	outcome := Outcome(err)
	metrics.ObserveFlow(string(k), outcome)
	attrs = append(attrs, slog.String("status", outcome), slog.String("outcome", outcome))
	if err == nil {
		logger.Info(ctx, component, string(k)+".committed", attrs...)
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		attrs = append(attrs, slog.String("err_code", fe.Code()))
	}
	attrs = append(attrs, logger.Err(err))
	if fe != nil && fe.Expected() {
		logger.Info(ctx, component, string(k)+".rejected", attrs...)
	} else {
		logger.Warn(ctx, component, string(k)+".failed", attrs...)
	}
	return err
}

func (c *Controller) cancelled(ctx context.Context, k Kind) {
	metrics.ObserveFlow(string(k), "cancelled")
	logger.Info(ctx, component, string(k)+".cancelled",
		slog.String("status", "cancelled"),
		slog.String("outcome", "cancelled"),
	)
}

func (c *Controller) reply(ctx context.Context, chatID int64, msg render.Message) {
	if _, err := c.msgr.Send(ctx, chatID, msg); err != nil {
		logger.Warn(ctx, component, "reply.failed", slog.Int64("chat_id", chatID), logger.Err(err))
	}
}

// respond edits the message carrying the pressed button, falling back to a
// fresh message when the edit is refused.
func (c *Controller) respond(ctx context.Context, in Interaction, msg render.Message) {
	err := c.msgr.Edit(ctx, in.Message, msg)
	if err == nil {
		return
	}
	logger.Debug(ctx, component, "edit.failed", logger.Err(err))
	c.reply(ctx, in.ChatID, msg)
}

// notify delivers a notice nobody is waiting on, such as a timeout.
func (c *Controller) notify(ctx context.Context, chatID int64, msg render.Message) {
	if n, ok := c.msgr.(Notifier); ok {
		n.Notify(ctx, chatID, msg)
		return
	}
	c.reply(ctx, chatID, msg)
}

func hasFile(in Inbound) bool { return in.File != nil }

func hasText(in Inbound) bool { return in.File == nil && in.Text != "" }
