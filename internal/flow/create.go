package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/m3rciful/systembot/core/logger"
	"github.com/m3rciful/systembot/internal/pending"
	"github.com/m3rciful/systembot/internal/render"
	"github.com/m3rciful/systembot/internal/systems"
)

// Create starts a create flow: the user is asked in private chat for the
// attachment of a new system called name.
func (c *Controller) Create(ctx context.Context, inv Invocation, name, desc string) error {
	name, desc = strings.TrimSpace(name), strings.TrimSpace(desc)
	if err := c.checkCooldown(ctx, inv, KindCreate); err != nil {
		return err
	}
	if err := systems.ValidateName(name); err != nil {
		return c.reject(ctx, inv.ChatID, KindCreate, "invalid_name", render.Invalid(err))
	}
	if err := systems.ValidateDescription(desc); err != nil {
		return c.reject(ctx, inv.ChatID, KindCreate, "invalid_description", render.Invalid(err))
	}
	_, exists, err := c.store.Get(ctx, name)
	if err != nil {
		c.reply(ctx, inv.ChatID, render.Failed("checking"))
		return c.observe(ctx, KindCreate, persistenceError("get", err))
	}
	if exists {
		return c.reject(ctx, inv.ChatID, KindCreate, "duplicate", render.Duplicate(name))
	}

	uid := inv.UserID
	id := uuid.NewString()
	ctx = flowContext(ctx, id)
	sess := c.tracker.Begin(SessionSpec{
		ID:        id,
		Kind:      KindCreate,
		UserID:    uid,
		ChatID:    uid,
		System:    name,
		State:     StateAwaitingFile,
		WantsFile: true,
		OnTimeout: c.createTimedOut,
		Setup: func() {
			c.pending.SetCreation(uid, pending.Creation{
				FlowID:      id,
				UserID:      uid,
				SystemName:  name,
				Description: desc,
				StartedAt:   c.clock.Now(),
				ChatID:      inv.ChatID,
			})
		},
		Release: func() { c.pending.ReleaseCreate(uid, id) },
	})

	if _, err := c.msgr.SendPrivate(ctx, uid, render.CreatePrompt(name, desc, c.tracker.Timeout())); err != nil {
		c.tracker.Finish(sess, StateFailed)
		c.reply(ctx, inv.ChatID, render.DMUnavailable())
		return c.observe(ctx, KindCreate, asDelivery(err), slog.String("system", name))
	}

	armed := c.tracker.Arm(sess, Subscription{
		Kind:   KindCreate,
		UserID: uid,
		ChatID: uid,
		Match:  hasFile,
		Handle: func(ctx context.Context, in Inbound) Verdict {
			return c.captureCreateFile(flowContext(ctx, id), sess, in)
		},
	})
	if !armed {
		logger.Debug(ctx, component, "create.superseded",
			slog.String("status", "noop"),
			slog.String("system", name),
		)
		return nil
	}
	if !inv.Private {
		c.reply(ctx, inv.ChatID, render.CreateStarted(name, desc))
	}
	logger.Info(ctx, component, "create.started",
		slog.String("status", "ok"),
		slog.String("system", name),
		slog.String("to_state", string(StateAwaitingFile)),
	)
	return nil
}

func (c *Controller) captureCreateFile(ctx context.Context, sess *Session, in Inbound) Verdict {
	pc, ok := c.pending.Creation(sess.UserID)
	if !ok || pc.FlowID != sess.ID {
		return Consume
	}
	if err := c.tracker.Step(sess, StateAwaitingFile, StateAwaitingConfirmation); err != nil {
		logger.Debug(ctx, component, "create.file_stale", slog.String("status", "noop"), logger.Err(err))
		return Consume
	}
	file := *in.File
	c.pending.SetCreationFile(sess.UserID, pending.CreationFile{
		FlowID:      sess.ID,
		File:        file,
		SystemName:  pc.SystemName,
		Description: pc.Description,
	})
	prompt := render.CreateConfirm(sess.UserID, pc.SystemName, pc.Description, file)
	if _, err := c.msgr.Send(ctx, in.ChatID, prompt); err != nil {
		c.tracker.Finish(sess, StateFailed)
		c.observe(ctx, KindCreate, asDelivery(err), slog.String("system", pc.SystemName))
		return Consume
	}
	logger.Info(ctx, component, "create.file_received",
		slog.String("status", "ok"),
		slog.String("system", pc.SystemName),
		slog.String("file", file.Name),
		slog.Int64("size_bytes", file.SizeBytes),
		slog.String("from_state", string(StateAwaitingFile)),
		slog.String("to_state", string(StateAwaitingConfirmation)),
	)
	return Consume
}

func (c *Controller) createTimedOut(s *Session, from State) {
	ctx := sessionContext(s)
	msg := render.CreateTimedOut()
	if from == StateAwaitingConfirmation {
		msg = render.CreateConfirmTimedOut()
	}
	c.notify(ctx, s.ChatID, msg)
	c.observe(ctx, KindCreate, &Error{Kind: KindTimeout, Reason: string(from)},
		slog.String("system", s.System),
		slog.String("from_state", string(from)),
	)
}

func (c *Controller) confirmCreate(ctx context.Context, in Interaction) (Ack, error) {
	uid := in.UserID
	sess := c.tracker.Current(KindCreate, uid)
	if sess == nil || !systems.SameName(sess.System, in.Action.System) {
		c.respond(ctx, in, render.NoPendingCreate())
		return Ack{}, c.observe(ctx, KindCreate, validationError("no_pending", ""))
	}
	ctx = flowContext(ctx, sess.ID)
	if err := c.tracker.Claim(sess, StateAwaitingConfirmation); err != nil {
		logger.Debug(ctx, component, "create.confirm_stale", slog.String("status", "noop"), logger.Err(err))
		return Ack{}, nil
	}
	pf, ok := c.pending.CreationFile(uid)
	if !ok || pf.FlowID != sess.ID {
		c.tracker.Finish(sess, StateFailed)
		c.respond(ctx, in, render.NoPendingCreate())
		return Ack{}, c.observe(ctx, KindCreate, validationError("no_pending", ""))
	}

	file := pf.File
	rec := systems.Record{
		Name:        pf.SystemName,
		Description: pf.Description,
		File:        &file,
		CreatedBy:   uid,
		CreatedAt:   c.clock.Now().UTC(),
	}
	if err := c.store.Upsert(ctx, rec); err != nil {
		c.tracker.Finish(sess, StateFailed)
		c.respond(ctx, in, render.Failed("saving"))
		return Ack{}, c.observe(ctx, KindCreate, persistenceError("upsert", err), slog.String("system", rec.Name))
	}
	c.tracker.Finish(sess, StateCommitted)
	c.cool.Set(uid, string(KindCreate))
	c.respond(ctx, in, render.CreateDone(rec))
	return Ack{}, c.observe(ctx, KindCreate, nil,
		slog.String("system", rec.Name),
		slog.String("from_state", string(StateAwaitingConfirmation)),
		slog.String("to_state", string(StateCommitted)),
	)
}

func (c *Controller) cancelCreate(ctx context.Context, in Interaction) (Ack, error) {
	if sess := c.tracker.Current(KindCreate, in.UserID); sess != nil && systems.SameName(sess.System, in.Action.System) {
		ctx = flowContext(ctx, sess.ID)
		if err := c.tracker.Claim(sess, StateAwaitingConfirmation); err != nil {
			logger.Debug(ctx, component, "create.cancel_stale", slog.String("status", "noop"), logger.Err(err))
			return Ack{}, nil
		}
		c.tracker.Finish(sess, StateCancelled)
	}
	c.respond(ctx, in, render.CreateCancelled())
	c.cancelled(ctx, KindCreate)
	return Ack{}, nil
}
