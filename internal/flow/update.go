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

// Update offers the editable fields of the system called name.
func (c *Controller) Update(ctx context.Context, inv Invocation, name string) error {
	name = strings.TrimSpace(name)
	if err := c.checkCooldown(ctx, inv, KindUpdate); err != nil {
		return err
	}
	if err := systems.ValidateName(name); err != nil {
		return c.reject(ctx, inv.ChatID, KindUpdate, "invalid_name", render.Invalid(err))
	}
	rec, ok, err := c.store.Get(ctx, name)
	if err != nil {
		c.reply(ctx, inv.ChatID, render.Failed("loading"))
		return c.observe(ctx, KindUpdate, persistenceError("get", err))
	}
	if !ok {
		return c.reject(ctx, inv.ChatID, KindUpdate, "not_found", render.NotFound(name))
	}
	c.reply(ctx, inv.ChatID, render.UpdateSelector(inv.UserID, rec))
	logger.Info(ctx, component, "update.offered",
		slog.String("status", "ok"),
		slog.String("system", rec.Name),
		slog.String("to_state", string(StateAwaitingSelection)),
	)
	return nil
}

func (c *Controller) selectUpdateField(ctx context.Context, in Interaction) (Ack, error) {
	uid, field := in.UserID, in.Action.Field
	rec, ok, err := c.store.Get(ctx, in.Action.System)
	if err != nil {
		c.respond(ctx, in, render.Failed("loading"))
		return Ack{}, c.observe(ctx, KindUpdate, persistenceError("get", err))
	}
	if !ok {
		c.respond(ctx, in, render.Vanished(in.Action.System))
		return Ack{}, c.observe(ctx, KindUpdate, validationError("vanished", ""))
	}

	id := uuid.NewString()
	ctx = flowContext(ctx, id)
	sess := c.tracker.Begin(SessionSpec{
		ID:        id,
		Kind:      KindUpdate,
		UserID:    uid,
		ChatID:    in.ChatID,
		System:    rec.Name,
		State:     StateAwaitingInput,
		WantsFile: field == systems.FieldFile,
		OnTimeout: c.updateTimedOut,
		Setup: func() {
			c.pending.SetUpdate(uid, pending.Update{
				FlowID:     id,
				UserID:     uid,
				SystemName: rec.Name,
				Field:      field,
				StartedAt:  c.clock.Now(),
				ChatID:     in.ChatID,
			})
		},
		Release: func() { c.pending.ReleaseUpdate(uid, id) },
	})
	match := hasText
	if field == systems.FieldFile {
		match = hasFile
	}
	c.tracker.Arm(sess, Subscription{
		Kind:   KindUpdate,
		UserID: uid,
		ChatID: in.ChatID,
		Match:  match,
		Handle: func(ctx context.Context, msg Inbound) Verdict {
			return c.captureUpdate(flowContext(ctx, id), sess, msg)
		},
	})
	c.respond(ctx, in, render.UpdatePrompt(field, rec.Name, c.tracker.Timeout()))
	logger.Info(ctx, component, "update.started",
		slog.String("status", "ok"),
		slog.String("system", rec.Name),
		slog.String("field", string(field)),
		slog.String("from_state", string(StateAwaitingSelection)),
		slog.String("to_state", string(StateAwaitingInput)),
	)
	return Ack{}, nil
}

func (c *Controller) captureUpdate(ctx context.Context, sess *Session, in Inbound) Verdict {
	pu, ok := c.pending.Update(sess.UserID)
	if !ok || pu.FlowID != sess.ID {
		return Consume
	}

	var prompt render.Message
	if pu.Field == systems.FieldFile {
		if err := c.tracker.Step(sess, StateAwaitingInput, StateAwaitingConfirmation); err != nil {
			return Consume
		}
		c.pending.SetUpdateFile(sess.UserID, pending.UpdateFile{FlowID: sess.ID, File: *in.File})
		c.dropInput(ctx, in)
		prompt = render.UpdateFileConfirm(sess.UserID, pu.SystemName, *in.File)
	} else {
		value := strings.TrimSpace(in.Text)
		if value == "" {
			c.reply(ctx, in.ChatID, render.InvalidValue())
			return Retain
		}
		if msg, ok := c.checkUpdateValue(ctx, pu, value); !ok {
			c.reply(ctx, in.ChatID, msg)
			return Retain
		}
		if err := c.tracker.Step(sess, StateAwaitingInput, StateAwaitingConfirmation); err != nil {
			return Consume
		}
		c.pending.AmendUpdate(sess.UserID, sess.ID, func(u *pending.Update) {
			u.NewValue, u.HasValue = value, true
		})
		c.dropInput(ctx, in)
		prompt = render.UpdateConfirm(sess.UserID, pu.SystemName, pu.Field, value)
	}

	if _, err := c.msgr.Send(ctx, in.ChatID, prompt); err != nil {
		c.tracker.Finish(sess, StateFailed)
		c.observe(ctx, KindUpdate, asDelivery(err), slog.String("system", pu.SystemName))
		return Consume
	}
	logger.Info(ctx, component, "update.value_received",
		slog.String("status", "ok"),
		slog.String("system", pu.SystemName),
		slog.String("field", string(pu.Field)),
		slog.String("from_state", string(StateAwaitingInput)),
		slog.String("to_state", string(StateAwaitingConfirmation)),
	)
	return Consume
}

// dropInput deletes the user's reply once it was captured; failures are
// only logged.
func (c *Controller) dropInput(ctx context.Context, in Inbound) {
	if err := c.msgr.Delete(ctx, in.Message); err != nil {
		logger.Debug(ctx, component, "update.input_delete_failed", logger.Err(err))
	}
}

// checkUpdateValue validates a text reply; a rejected value yields the notice to show.
func (c *Controller) checkUpdateValue(ctx context.Context, pu pending.Update, value string) (render.Message, bool) {
	switch pu.Field {
	case systems.FieldName:
		if err := systems.ValidateName(value); err != nil {
			return render.Invalid(err), false
		}
		if systems.SameName(value, pu.SystemName) {
			return render.Message{}, true
		}
		_, exists, err := c.store.Get(ctx, value)
		if err != nil {
			logger.Warn(ctx, component, "update.lookup_failed", logger.Err(err))
			return render.Failed("checking"), false
		}
		if exists {
			return render.Duplicate(value), false
		}
	case systems.FieldDescription:
		if err := systems.ValidateDescription(value); err != nil {
			return render.Invalid(err), false
		}
	}
	return render.Message{}, true
}

func (c *Controller) updateTimedOut(s *Session, from State) {
	ctx := sessionContext(s)
	c.notify(ctx, s.ChatID, render.UpdateTimedOut())
	c.observe(ctx, KindUpdate, &Error{Kind: KindTimeout, Reason: string(from)},
		slog.String("system", s.System),
		slog.String("from_state", string(from)),
	)
}

func (c *Controller) confirmUpdate(ctx context.Context, in Interaction) (Ack, error) {
	uid := in.UserID
	sess := c.tracker.Current(KindUpdate, uid)
	if sess == nil || !systems.SameName(sess.System, in.Action.System) {
		c.respond(ctx, in, render.NoPendingUpdate())
		return Ack{}, c.observe(ctx, KindUpdate, validationError("no_pending", ""))
	}
	ctx = flowContext(ctx, sess.ID)
	if err := c.tracker.Claim(sess, StateAwaitingConfirmation); err != nil {
		logger.Debug(ctx, component, "update.confirm_stale", slog.String("status", "noop"), logger.Err(err))
		return Ack{}, nil
	}
	pu, ok := c.pending.Update(uid)
	if !ok || pu.FlowID != sess.ID {
		c.tracker.Finish(sess, StateFailed)
		c.respond(ctx, in, render.NoPendingUpdate())
		return Ack{}, c.observe(ctx, KindUpdate, validationError("no_pending", ""))
	}

	next, msg, err := c.applyUpdate(ctx, uid, pu)
	if err != nil {
		c.tracker.Finish(sess, StateFailed)
		c.respond(ctx, in, msg)
		return Ack{}, c.observe(ctx, KindUpdate, err, slog.String("system", pu.SystemName))
	}
	c.tracker.Finish(sess, StateCommitted)
	c.cool.Set(uid, string(KindUpdate))
	c.respond(ctx, in, render.UpdateDone(next, pu.Field))
	return Ack{}, c.observe(ctx, KindUpdate, nil,
		slog.String("system", next.Name),
		slog.String("field", string(pu.Field)),
		slog.String("from_state", string(StateAwaitingConfirmation)),
		slog.String("to_state", string(StateCommitted)),
	)
}

// applyUpdate writes the captured change onto the current stored record.
// A rename stores the record under its new key and drops the old one.
func (c *Controller) applyUpdate(ctx context.Context, uid int64, pu pending.Update) (systems.Record, render.Message, error) {
	cur, ok, err := c.store.Get(ctx, pu.SystemName)
	if err != nil {
		return systems.Record{}, render.Failed("updating"), persistenceError("get", err)
	}
	if !ok {
		return systems.Record{}, render.Vanished(pu.SystemName), validationError("vanished", "")
	}

	next := cur.Clone()
	switch pu.Field {
	case systems.FieldName:
		if !pu.HasValue {
			return systems.Record{}, render.NoPendingUpdate(), validationError("no_value", "")
		}
		if !systems.SameName(pu.NewValue, cur.Name) {
			_, exists, err := c.store.Get(ctx, pu.NewValue)
			if err != nil {
				return systems.Record{}, render.Failed("updating"), persistenceError("get", err)
			}
			if exists {
				return systems.Record{}, render.Duplicate(pu.NewValue), validationError("duplicate", "")
			}
		}
		next.Name = pu.NewValue
	case systems.FieldDescription:
		if !pu.HasValue {
			return systems.Record{}, render.NoPendingUpdate(), validationError("no_value", "")
		}
		next.Description = pu.NewValue
	case systems.FieldFile:
		uf, ok := c.pending.UpdateFile(uid)
		if !ok || uf.FlowID != pu.FlowID {
			return systems.Record{}, render.NoPendingUpdate(), validationError("no_value", "")
		}
		f := uf.File
		next.File = &f
	}

	if err := c.store.Upsert(ctx, next); err != nil {
		return systems.Record{}, render.Failed("updating"), persistenceError("upsert", err)
	}
	if !systems.SameName(cur.Name, next.Name) {
		if _, err := c.store.Remove(ctx, cur.Name); err != nil {
			logger.Warn(ctx, component, "update.rename_cleanup_failed",
				slog.String("system", cur.Name),
				logger.Err(err),
			)
		}
	}
	return next, render.Message{}, nil
}

func (c *Controller) cancelUpdate(ctx context.Context, in Interaction) (Ack, error) {
	if sess := c.tracker.Current(KindUpdate, in.UserID); sess != nil && systems.SameName(sess.System, in.Action.System) {
		ctx = flowContext(ctx, sess.ID)
		if err := c.tracker.Claim(sess, StateAwaitingConfirmation); err != nil {
			logger.Debug(ctx, component, "update.cancel_stale", slog.String("status", "noop"), logger.Err(err))
			return Ack{}, nil
		}
		c.tracker.Finish(sess, StateCancelled)
	}
	c.respond(ctx, in, render.UpdateCancelled())
	c.cancelled(ctx, KindUpdate)
	return Ack{}, nil
}
