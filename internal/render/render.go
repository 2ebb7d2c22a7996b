// Package render builds every user-facing message of the bot as MarkdownV2
// text plus optional inline buttons.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/systembot/core/telegram/format"
	"github.com/m3rciful/systembot/internal/action"
	"github.com/m3rciful/systembot/internal/systems"
)

// ListLimit caps the number of records shown by a listing.
const ListLimit = 25

// Button is one inline keyboard button.
type Button struct {
	Text   string
	Action action.Action
}

// Message is a rendered reply: MarkdownV2 text, button rows and an optional
// document to attach after the text.
type Message struct {
	Text     string
	Buttons  [][]Button
	Document *systems.File
}

// HasButtons reports whether the message carries an inline keyboard.
func (m Message) HasButtons() bool { return len(m.Buttons) > 0 }

// Text wraps plain text into an escaped message.
func Text(s string) Message { return Message{Text: format.V2(s)} }

type builder struct {
	b strings.Builder
}

func (w *builder) title(s string) *builder {
	w.b.WriteString("*")
	w.b.WriteString(format.V2(s))
	w.b.WriteString("*\n")
	return w
}

func (w *builder) line(s string) *builder {
	w.b.WriteString(format.V2(s))
	w.b.WriteString("\n")
	return w
}

func (w *builder) field(label, value string) *builder {
	w.b.WriteString("*")
	w.b.WriteString(format.V2(label))
	w.b.WriteString(":* ")
	w.b.WriteString(format.V2(value))
	w.b.WriteString("\n")
	return w
}

func (w *builder) blank() *builder {
	w.b.WriteString("\n")
	return w
}

func (w *builder) italic(s string) *builder {
	w.b.WriteString("_")
	w.b.WriteString(format.V2(s))
	w.b.WriteString("_\n")
	return w
}

func (w *builder) String() string { return strings.TrimRight(w.b.String(), "\n") }

// KB renders a byte size as kilobytes with two decimals.
func KB(size int64) string {
	return strconv.FormatFloat(float64(size)/1024, 'f', 2, 64) + " KB"
}

func fileLabel(f *systems.File) string {
	if f == nil || f.URL == "" {
		return "No file"
	}
	return f.Name
}

func fileWithSize(f systems.File) string {
	return fmt.Sprintf("%s (%s)", f.Name, KB(f.SizeBytes))
}

func minutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m <= 1 {
		return "1 minute"
	}
	return strconv.Itoa(m) + " minutes"
}

func confirmRow(uid int64, name string, ok, no action.Kind, okText string) [][]Button {
	return [][]Button{{
		{Text: okText, Action: action.Action{Kind: ok, UserID: uid, System: name}},
		{Text: "❌ Cancel", Action: action.Action{Kind: no, UserID: uid, System: name}},
	}}
}
