package logger

import (
	"log/slog"
	"strings"
)

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

// enum restricts a field to a fixed vocabulary. Unknown values are dropped
// unless keepUnknown is set.
type enum struct {
	values      map[string]struct{}
	keepUnknown bool
}

func newEnum(keepUnknown bool, values ...string) enum {
	e := enum{values: make(map[string]struct{}, len(values)), keepUnknown: keepUnknown}
	for _, v := range values {
		e.values[v] = struct{}{}
	}
	return e
}

func (e enum) normalize(raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	_, ok := e.values[v]
	return v, ok
}

// outcomes is the result vocabulary of handlers and flows.
var outcomes = []string{"ok", "fail", "cancelled", "rate_limited", "timed_out", "rejected"}

var enums = map[string]enum{
	"status":  newEnum(true, append([]string{"skip", "retry", "noop"}, outcomes...)...),
	"outcome": newEnum(false, outcomes...),
	"cache":   newEnum(false, "hit", "miss", "purge"),
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"flow",
	"flow_id",
	"state",
	"from_state",
	"to_state",
	"op",
	"cb_key",
	"action",
	"system",
	"field",
	"recipient_id",
	"outcome",
	"duration_ms",
	"elapsed_ms",
	"messages",
	"kb",
	"count",
	"remaining_s",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"driver",
	"path",
	"db",
	"host",
	"port",
	"err",
	"err_kind",
	"err_code",
	"cause",
	"attempts",
}
