package middleware

import (
	tghelpers "github.com/m3rciful/systembot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// countingContext counts the replies a handler makes through tele.Context.
type countingContext struct{ tele.Context }

func (c countingContext) tally(err error, opts []interface{}) error {
	if err == nil {
		tghelpers.CountSent(tghelpers.BuildContext(c.Context), carriesKeyboard(opts))
	}
	return err
}

func carriesKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		if rm, ok := o.(*tele.ReplyMarkup); ok && rm != nil {
			return true
		}
		if so, ok := o.(*tele.SendOptions); ok && so != nil && so.ReplyMarkup != nil {
			return true
		}
	}
	return false
}

func (c countingContext) Send(what interface{}, opts ...interface{}) error {
	return c.tally(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Reply(what interface{}, opts ...interface{}) error {
	return c.tally(c.Context.Reply(what, opts...), opts)
}

func (c countingContext) Edit(what interface{}, opts ...interface{}) error {
	return c.tally(c.Context.Edit(what, opts...), opts)
}

// MessageMetricsMiddleware gives each update fresh send counters, read back
// by GetCounters for the handler summary. Sends that bypass tele.Context
// report through tghelpers.CountSent.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		tghelpers.StoreContext(c, tghelpers.WithSendCounters(tghelpers.BuildContext(c)))
		return next(countingContext{Context: c})
	}
}

// GetCounters returns the messages sent for the update and whether any
// carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	return tghelpers.SendCounts(tghelpers.BuildContext(c))
}
