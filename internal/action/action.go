// Package action encodes the inline-button actions of the bot into
// Telegram callback data and back.
//
// Wire form: unique = short code of the kind, payload = base36(user)|field|name.
// The name goes last so it may itself contain the delimiter. Telebot sends
// "\f" + unique + "|" + payload, which must fit Telegram's 64-byte limit.
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/systembot/internal/systems"
)

// Kind selects the flow handler of an action.
type Kind string

const (
	CreateConfirm Kind = "create_confirm"
	CreateCancel  Kind = "create_cancel"
	UpdateSelect  Kind = "update_select"
	UpdateConfirm Kind = "update_confirm"
	UpdateCancel  Kind = "update_cancel"
	RemoveConfirm Kind = "remove_confirm"
	RemoveCancel  Kind = "remove_cancel"
)

// MaxCallbackBytes is Telegram's limit on callback_data.
const MaxCallbackBytes = 64

const sep = "|"

var (
	// ErrMalformed reports callback data that does not decode into an action.
	ErrMalformed = errors.New("action: malformed payload")
	// ErrUnknownKind reports a well-formed callback for a kind this bot does not know.
	ErrUnknownKind = errors.New("action: unknown kind")
	// ErrTooLong reports an action whose wire form exceeds MaxCallbackBytes.
	ErrTooLong = errors.New("action: encoded form exceeds callback limit")
)

var codes = map[Kind]string{
	CreateConfirm: "cr_ok",
	CreateCancel:  "cr_no",
	UpdateSelect:  "up_sel",
	UpdateConfirm: "up_ok",
	UpdateCancel:  "up_no",
	RemoveConfirm: "rm_ok",
	RemoveCancel:  "rm_no",
}

var kindsByCode = func() map[string]Kind {
	m := make(map[string]Kind, len(codes))
	for k, c := range codes {
		m[c] = k
	}
	return m
}()

var fieldCodes = map[systems.Field]string{
	systems.FieldName:        "n",
	systems.FieldDescription: "d",
	systems.FieldFile:        "f",
}

// Action is the structured form of a button press.
type Action struct {
	Kind   Kind
	UserID int64
	System string
	Field  systems.Field
}

// Uniques lists the telebot unique of every kind, for route registration.
func Uniques() []string {
	out := make([]string, 0, len(codes))
	for _, k := range []Kind{CreateConfirm, CreateCancel, UpdateSelect, UpdateConfirm, UpdateCancel, RemoveConfirm, RemoveCancel} {
		out = append(out, codes[k])
	}
	return out
}

// Unique returns the telebot unique for k.
func (k Kind) Unique() string { return codes[k] }

func (k Kind) needsSystem() bool {
	return k != CreateCancel
}

// Validate checks the action carries what its kind requires.
func (a Action) Validate() error {
	if _, ok := codes[a.Kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}
	if a.UserID <= 0 {
		return fmt.Errorf("%w: missing user id", ErrMalformed)
	}
	if a.Kind.needsSystem() && strings.TrimSpace(a.System) == "" {
		return fmt.Errorf("%w: %s requires a system name", ErrMalformed, a.Kind)
	}
	if a.Kind == UpdateSelect {
		if _, ok := fieldCodes[a.Field]; !ok {
			return fmt.Errorf("%w: %s requires a field", ErrMalformed, a.Kind)
		}
	}
	return nil
}

// Encode returns the telebot unique and payload of a.
func Encode(a Action) (string, string, error) {
	if err := a.Validate(); err != nil {
		return "", "", err
	}
	unique := codes[a.Kind]
	payload := strings.Join([]string{
		strconv.FormatInt(a.UserID, 36),
		fieldCodes[a.Field],
		a.System,
	}, sep)
	if n := 1 + len(unique) + len(sep) + len(payload); n > MaxCallbackBytes {
		return "", "", fmt.Errorf("%w: %d bytes", ErrTooLong, n)
	}
	return unique, payload, nil
}

// Decode parses the unique and payload of a callback.
func Decode(unique, payload string) (Action, error) {
	kind, ok := kindsByCode[strings.TrimSpace(unique)]
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownKind, unique)
	}
	parts := strings.SplitN(payload, sep, 3)
	if len(parts) != 3 {
		return Action{}, ErrMalformed
	}
	uid, err := strconv.ParseInt(parts[0], 36, 64)
	if err != nil {
		return Action{}, fmt.Errorf("%w: user id: %v", ErrMalformed, err)
	}
	a := Action{Kind: kind, UserID: uid, System: parts[2]}
	if parts[1] != "" {
		f, ok := fieldByCode(parts[1])
		if !ok {
			return Action{}, fmt.Errorf("%w: field %q", ErrMalformed, parts[1])
		}
		a.Field = f
	}
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

func fieldByCode(code string) (systems.Field, bool) {
	for f, c := range fieldCodes {
		if c == code {
			return f, true
		}
	}
	return "", false
}
