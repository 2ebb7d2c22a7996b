// Package format escapes user text for Telegram's markdown parse modes.
package format

import (
	"fmt"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

// Entity types that change which characters need escaping in MarkdownV2.
const (
	EntityText     = ""
	EntityCode     = "code"
	EntityPre      = "pre"
	EntityTextLink = "text_link"
)

const (
	mdV1Specials = "_*`["
	mdV2Specials = "_*[]()~`>#+-=|{}.!\\"
	mdV2Code     = "`\\"
	mdV2LinkURL  = ")\\"
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2. For V2 the
// entityType selects the escaping rules: code and pre bodies only escape
// backticks and backslashes, text_link URLs only ')' and backslashes.
func EscapeMarkdown(text string, version int, entityType string) (string, error) {
	switch version {
	case MarkdownV1:
		return escapeSet(text, mdV1Specials), nil
	case MarkdownV2:
		switch entityType {
		case EntityText:
			return escapeSet(text, mdV2Specials), nil
		case EntityCode, EntityPre:
			return escapeSet(text, mdV2Code), nil
		case EntityTextLink:
			return escapeSet(text, mdV2LinkURL), nil
		}
		return "", fmt.Errorf("unsupported entity type: %q", entityType)
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// V2 escapes plain text for MarkdownV2.
func V2(text string) string {
	return escapeSet(text, mdV2Specials)
}

// V2Code escapes text placed inside an inline code or pre entity.
func V2Code(text string) string {
	return escapeSet(text, mdV2Code)
}

func escapeSet(text, specials string) string {
	if !strings.ContainsAny(text, specials) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	for _, r := range text {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
