package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/systembot/core/telegram"
	"github.com/m3rciful/systembot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Conversation is the part of the bot that waits for free-form replies.
type Conversation interface {
	// Offer hands a plain message to whatever flow awaits it and reports
	// whether one consumed it.
	Offer(c tele.Context) bool
}

// TextOptions controls fallback behaviour for messages no conversation took.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes builds handlers for text, photo and document messages.
// Unregistered slash commands are resolved through aliases and otherwise
// ignored; they never reach a conversation.
func TextRoutes(conv Conversation, reg *tg.Registry, opts TextOptions) []tg.Route {
	textHandler := func(c tele.Context) error {
		start := time.Now()
		text := strings.TrimSpace(c.Text())

		if strings.HasPrefix(text, "/") {
			if reg != nil {
				word, _, _ := strings.Cut(text, " ")
				word, _, _ = strings.Cut(word, "@")
				if key, cmd, ok := reg.LookupCommand(word); ok && cmd.Handler != nil {
					return handled(c, handlerName(key), start, func() error {
						return cmd.Handler(c)
					})
				}
			}
			skipped(c, "unknown_command", start)
			return nil
		}

		if conv != nil && conv.Offer(c) {
			summary{handler: "conversation", start: start}.log(c, nil)
			return nil
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handled(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}
		if opts.UnknownText != nil {
			return handled(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}
		skipped(c, "unknown_text", start)
		return nil
	}

	fileHandler := func(c tele.Context) error {
		start := time.Now()
		if conv != nil && conv.Offer(c) {
			summary{handler: "conversation_file", start: start}.log(c, nil)
			return nil
		}
		if opts.UnknownDocument != nil {
			return handled(c, "unexpected_file", start, func() error {
				return opts.UnknownDocument(c)
			})
		}
		skipped(c, "unexpected_file", start)
		return nil
	}

	text := middleware.RecoverMiddleware(textHandler)
	file := middleware.RecoverMiddleware(fileHandler)
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: text},
		{Endpoint: tele.OnDocument, Handler: file},
		{Endpoint: tele.OnPhoto, Handler: file},
	}
}
