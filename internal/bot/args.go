package bot

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnterminated reports a quoted value without its closing quote.
var ErrUnterminated = errors.New("bot: unterminated quoted value")

// argKeys maps every accepted key spelling onto its canonical key.
var argKeys = map[string]string{
	"name":        "name",
	"system":      "name",
	"system_name": "name",
	"description": "description",
	"desc":        "description",
	"user":        "user",
	"to":          "user",
	"recipient":   "user",
}

// Args is the parsed argument text of a command: key="value" pairs, or
// whatever follows the command when it does not start with a known key.
type Args struct {
	named      map[string]string
	positional string
}

// ParseArgs splits payload into named pairs or a positional remainder.
// Named pairs use only the keys in argKeys; values are bare words or
// double-quoted strings where \" and \\ escape.
func ParseArgs(payload string) (Args, error) {
	a := Args{named: map[string]string{}}
	s := strings.TrimSpace(payload)
	for s != "" {
		key, rest, ok := cutKey(s)
		if !ok {
			if len(a.named) > 0 {
				return Args{}, errors.New("bot: unexpected text after named arguments")
			}
			a.positional = s
			return a, nil
		}
		val, rest, err := cutValue(rest)
		if err != nil {
			return Args{}, err
		}
		a.named[key] = val
		s = strings.TrimLeft(rest, " \t\n")
	}
	return a, nil
}

func cutKey(s string) (string, string, bool) {
	eq := strings.IndexByte(s, '=')
	if eq <= 0 {
		return "", "", false
	}
	key, ok := argKeys[strings.ToLower(s[:eq])]
	if !ok {
		return "", "", false
	}
	return key, s[eq+1:], true
}

func cutValue(s string) (string, string, error) {
	if !strings.HasPrefix(s, `"`) {
		end := strings.IndexAny(s, " \t\n")
		if end < 0 {
			return s, "", nil
		}
		return s[:end], s[end:], nil
	}
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\'):
			b.WriteByte(s[i+1])
			i++
		case c == '"':
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(c)
		}
	}
	return "", "", ErrUnterminated
}

// Named returns the value given for key.
func (a Args) Named(key string) (string, bool) {
	v, ok := a.named[key]
	return strings.TrimSpace(v), ok
}

// Positional returns the text that was not given as pairs.
func (a Args) Positional() string { return a.positional }

// Empty reports whether no argument at all was given.
func (a Args) Empty() bool { return len(a.named) == 0 && a.positional == "" }

// NameAndDescription reads the /create arguments: name and description
// pairs, or "name | description".
func (a Args) NameAndDescription() (string, string) {
	if name, ok := a.Named("name"); ok {
		desc, _ := a.Named("description")
		return name, desc
	}
	name, desc, _ := strings.Cut(a.positional, "|")
	return strings.TrimSpace(name), strings.TrimSpace(desc)
}

// Name reads a lone system name.
func (a Args) Name() string {
	if name, ok := a.Named("name"); ok {
		return name
	}
	return strings.TrimSpace(a.positional)
}

// UserAndName reads the /send arguments. A positional form starting with a
// numeric id is "id name"; otherwise the whole text is the name and the
// recipient must come from elsewhere (id 0).
func (a Args) UserAndName() (int64, string) {
	if len(a.named) > 0 {
		name, _ := a.Named("name")
		raw, _ := a.Named("user")
		id, _ := strconv.ParseInt(raw, 10, 64)
		return id, name
	}
	first, rest, _ := strings.Cut(a.positional, " ")
	if id, err := strconv.ParseInt(first, 10, 64); err == nil && id > 0 {
		return id, strings.TrimSpace(rest)
	}
	return 0, strings.TrimSpace(a.positional)
}
