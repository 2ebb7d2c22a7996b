package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/systembot/internal/render"
	"github.com/m3rciful/systembot/internal/systems"
)

// Remove asks the user to confirm deletion of the system called name.
// Removal keeps no session: the confirm button alone carries the target.
func (c *Controller) Remove(ctx context.Context, inv Invocation, name string) error {
	name = strings.TrimSpace(name)
	if err := c.checkCooldown(ctx, inv, KindRemove); err != nil {
		return err
	}
	if err := systems.ValidateName(name); err != nil {
		return c.reject(ctx, inv.ChatID, KindRemove, "invalid_name", render.Invalid(err))
	}
	rec, ok, err := c.store.Get(ctx, name)
	if err != nil {
		c.reply(ctx, inv.ChatID, render.Failed("loading"))
		return c.observe(ctx, KindRemove, persistenceError("get", err))
	}
	if !ok {
		return c.reject(ctx, inv.ChatID, KindRemove, "not_found", render.NotFound(name))
	}
	c.reply(ctx, inv.ChatID, render.RemoveConfirm(inv.UserID, rec))
	return nil
}

func (c *Controller) confirmRemove(ctx context.Context, in Interaction) (Ack, error) {
	name := in.Action.System
	removed, err := c.store.Remove(ctx, name)
	if err != nil {
		c.respond(ctx, in, render.Failed("removing"))
		return Ack{}, c.observe(ctx, KindRemove, persistenceError("remove", err), slog.String("system", name))
	}
	if !removed {
		c.respond(ctx, in, render.AlreadyRemoved(name))
		return Ack{}, c.observe(ctx, KindRemove, validationError("already_removed", ""), slog.String("system", name))
	}
	c.cool.Set(in.UserID, string(KindRemove))
	c.respond(ctx, in, render.RemoveDone(name))
	return Ack{}, c.observe(ctx, KindRemove, nil,
		slog.String("system", name),
		slog.String("from_state", string(StateAwaitingConfirmation)),
		slog.String("to_state", string(StateCommitted)),
	)
}

func (c *Controller) cancelRemove(ctx context.Context, in Interaction) (Ack, error) {
	c.respond(ctx, in, render.RemoveCancelled())
	c.cancelled(ctx, KindRemove)
	return Ack{}, nil
}
