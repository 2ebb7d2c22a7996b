package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/systembot/internal/render"
	"github.com/m3rciful/systembot/internal/systems"
)

// Send delivers the system called name to the private chat of to.
func (c *Controller) Send(ctx context.Context, inv Invocation, to Recipient, name string) error {
	name = strings.TrimSpace(name)
	if err := c.checkCooldown(ctx, inv, KindSend); err != nil {
		return err
	}
	if to.ID <= 0 {
		return c.reject(ctx, inv.ChatID, KindSend, "no_recipient", render.NoRecipient())
	}
	if err := systems.ValidateName(name); err != nil {
		return c.reject(ctx, inv.ChatID, KindSend, "invalid_name", render.Invalid(err))
	}
	rec, ok, err := c.store.Get(ctx, name)
	if err != nil {
		c.reply(ctx, inv.ChatID, render.Failed("loading"))
		return c.observe(ctx, KindSend, persistenceError("get", err))
	}
	if !ok {
		return c.reject(ctx, inv.ChatID, KindSend, "not_found", render.NotFound(name))
	}

	from := render.Person{ID: inv.UserID, Name: inv.UserName}
	target := render.Person{ID: to.ID, Name: to.Name}
	if _, err := c.msgr.SendPrivate(ctx, to.ID, render.SentSystem(rec, from)); err != nil {
		derr := asDelivery(err)
		c.reply(ctx, inv.ChatID, render.SendFailed(rec, target, string(DeliveryKindOf(derr))))
		return c.observe(ctx, KindSend, derr,
			slog.String("system", rec.Name),
			slog.Int64("recipient_id", to.ID),
		)
	}
	c.cool.Set(inv.UserID, string(KindSend))
	c.reply(ctx, inv.ChatID, render.SendDone(rec, target))
	return c.observe(ctx, KindSend, nil,
		slog.String("system", rec.Name),
		slog.Int64("recipient_id", to.ID),
	)
}

// List shows the stored systems.
func (c *Controller) List(ctx context.Context, inv Invocation) error {
	if err := c.checkCooldown(ctx, inv, KindList); err != nil {
		return err
	}
	recs, err := c.store.All(ctx)
	if err != nil {
		c.reply(ctx, inv.ChatID, render.Failed("loading"))
		return c.observe(ctx, KindList, persistenceError("all", err))
	}
	c.cool.Set(inv.UserID, string(KindList))
	c.reply(ctx, inv.ChatID, render.Listing(recs))
	return c.observe(ctx, KindList, nil, slog.Int("count", len(recs)))
}
