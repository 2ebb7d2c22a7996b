package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/m3rciful/systembot/core/logger"
	tghelpers "github.com/m3rciful/systembot/core/telegram/helpers"
	"github.com/m3rciful/systembot/core/telegram/keyboard"
	"github.com/m3rciful/systembot/core/telegram/sender"
	"github.com/m3rciful/systembot/internal/action"
	"github.com/m3rciful/systembot/internal/flow"
	"github.com/m3rciful/systembot/internal/render"

	tele "gopkg.in/telebot.v4"
)

const component = "tg.messenger"

// API is the part of *tele.Bot the messenger needs.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Messenger delivers rendered messages through the Telegram Bot API.
type Messenger struct {
	api  API
	disp *sender.Dispatcher
}

// NewMessenger wraps api. disp, when set, carries Notify calls off the
// caller's goroutine.
func NewMessenger(api API, disp *sender.Dispatcher) *Messenger {
	return &Messenger{api: api, disp: disp}
}

// SendPrivate delivers msg to the private chat with userID, whose chat id is
// the user id itself.
func (m *Messenger) SendPrivate(ctx context.Context, userID int64, msg render.Message) (flow.MessageRef, error) {
	return m.Send(ctx, userID, msg)
}

// Send posts msg to chatID, followed by its document if it has one. A failed
// document upload is logged; the text has already been delivered.
func (m *Messenger) Send(ctx context.Context, chatID int64, msg render.Message) (flow.MessageRef, error) {
	markup, err := Markup(msg.Buttons)
	if err != nil {
		return flow.MessageRef{}, err
	}
	to := tele.ChatID(chatID)
	sent, err := m.api.Send(to, msg.Text, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdownV2,
		ReplyMarkup:           markup,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return flow.MessageRef{}, classify(err)
	}
	tghelpers.CountSent(ctx, markup != nil)
	ref := refOf(sent, chatID)

	if doc := msg.Document; doc != nil && doc.URL != "" {
		_, err := m.api.Send(to, &tele.Document{File: tele.File{FileID: doc.URL}, FileName: doc.Name})
		if err != nil {
			logger.Warn(ctx, component, "document.failed",
				slog.String("status", "fail"),
				slog.Int64("chat_id", chatID),
				slog.String("file", doc.Name),
				logger.Err(err),
			)
		} else {
			tghelpers.CountSent(ctx, false)
		}
	}
	return ref, nil
}

// Edit replaces the text and keyboard of ref. A message without buttons
// loses its keyboard. Editing to identical content is not an error.
func (m *Messenger) Edit(ctx context.Context, ref flow.MessageRef, msg render.Message) error {
	markup, err := Markup(msg.Buttons)
	if err != nil {
		return err
	}
	_, err = m.api.Edit(stored(ref), msg.Text, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdownV2,
		ReplyMarkup:           markup,
		DisableWebPagePreview: true,
	})
	if err != nil && !errors.Is(err, tele.ErrSameMessageContent) {
		return classify(err)
	}
	tghelpers.CountSent(ctx, markup != nil)
	return nil
}

// Delete removes ref.
func (m *Messenger) Delete(_ context.Context, ref flow.MessageRef) error {
	if err := m.api.Delete(stored(ref)); err != nil {
		return classify(err)
	}
	return nil
}

// Notify sends msg asynchronously; it is used for notices raised by timers,
// where nobody waits for the result.
func (m *Messenger) Notify(ctx context.Context, chatID int64, msg render.Message) {
	run := func() error {
		_, err := m.Send(ctx, chatID, msg)
		return err
	}
	if m.disp != nil {
		err := m.disp.Enqueue(ctx, "notify", "sendMessage", run)
		if err == nil {
			return
		}
		logger.Warn(ctx, component, "notify.fallback", logger.Err(err))
	}
	if err := run(); err != nil {
		logger.Warn(ctx, component, "notify.failed",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			logger.Err(err),
		)
	}
}

// Markup turns button rows into an inline keyboard, encoding each action
// into callback data. It returns nil for no buttons.
func Markup(rows [][]render.Button) (*tele.ReplyMarkup, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([][]keyboard.InlineBtn, 0, len(rows))
	for _, row := range rows {
		btns := make([]keyboard.InlineBtn, 0, len(row))
		for _, b := range row {
			unique, payload, err := action.Encode(b.Action)
			if err != nil {
				return nil, fmt.Errorf("bot: encode %q button: %w", b.Text, err)
			}
			btns = append(btns, keyboard.InlineBtn{Text: b.Text, Unique: unique, Data: payload})
		}
		out = append(out, btns)
	}
	return keyboard.InlineButtonsRows(out...), nil
}

func stored(ref flow.MessageRef) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}

func refOf(m *tele.Message, chatID int64) flow.MessageRef {
	if m == nil {
		return flow.MessageRef{ChatID: chatID}
	}
	ref := flow.MessageRef{ChatID: chatID, MessageID: m.ID}
	if m.Chat != nil {
		ref.ChatID = m.Chat.ID
	}
	return ref
}

// unreachable lists the API answers meaning the user cannot receive private
// messages from the bot at all.
var unreachable = []error{
	tele.ErrBlockedByUser,
	tele.ErrNotStartedByUser,
	tele.ErrUserIsDeactivated,
	tele.ErrChatNotFound,
}

// classify maps a Bot API failure onto a delivery error kind.
func classify(err error) error {
	for _, target := range unreachable {
		if errors.Is(err, target) {
			return flow.NewDeliveryError(flow.DeliveryUnreachable, err)
		}
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return flow.NewDeliveryError(flow.DeliveryForbidden, err)
	}
	return flow.NewDeliveryError(flow.DeliveryOther, err)
}
