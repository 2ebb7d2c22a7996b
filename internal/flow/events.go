package flow

import (
	"context"

	"github.com/m3rciful/systembot/internal/action"
	"github.com/m3rciful/systembot/internal/render"
	"github.com/m3rciful/systembot/internal/systems"
)

// Kind identifies which flow a session or subscription belongs to.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindRemove Kind = "remove"
	KindSend   Kind = "send"
	KindList   Kind = "checksystems"
)

// Invocation is a command issued by a user.
type Invocation struct {
	UserID   int64
	UserName string
	ChatID   int64
	// Private is true when the command was issued in the bot's private chat.
	Private bool
}

// MessageRef addresses a message the bot sent.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Interaction is a button press on a message the bot sent.
type Interaction struct {
	UserID   int64
	UserName string
	ChatID   int64
	Message  MessageRef
	Action   action.Action
}

// Inbound is a plain message a subscription may consume.
type Inbound struct {
	UserID  int64
	ChatID  int64
	Message MessageRef
	Text    string
	File    *systems.File
}

// Ack is the short answer shown for a button press.
type Ack struct {
	Text  string
	Alert bool
}

// Recipient is the target of /send.
type Recipient struct {
	ID   int64
	Name string
}

// Messenger is the outbound side of the chat platform.
type Messenger interface {
	// SendPrivate delivers msg in the private chat with userID.
	SendPrivate(ctx context.Context, userID int64, msg render.Message) (MessageRef, error)
	// Send posts msg to chatID.
	Send(ctx context.Context, chatID int64, msg render.Message) (MessageRef, error)
	// Edit replaces the text and buttons of ref.
	Edit(ctx context.Context, ref MessageRef, msg render.Message) error
	// Delete removes ref.
	Delete(ctx context.Context, ref MessageRef) error
}

// Notifier is implemented by messengers that can deliver fire-and-forget
// notices off the caller's goroutine.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, msg render.Message)
}
