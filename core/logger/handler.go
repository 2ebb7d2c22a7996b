package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	tsLayout = "2006-01-02T15:04:05.000Z07:00"
)

var errNoWriter = errors.New("logger: writer not initialized")

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler writes one line per record, JSON or key=value, with the
// configured keys first and every other key after them in lexical order.
type structuredHandler struct {
	cfg    handlerConfig
	rank   map[string]int
	preset []field
	prefix string
}

type field struct {
	key string
	val any
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	rank := make(map[string]int, len(cfg.keyOrder))
	for i, k := range cfg.keyOrder {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return &structuredHandler{cfg: cfg, rank: rank}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errNoWriter
	}
	asJSON := h.cfg.format == formatJSON

	ln := newLine(len(h.preset) + r.NumAttrs() + 8)
	ts := r.Time.UTC()
	ln.set("ts", ts.Truncate(time.Millisecond).Format(tsLayout))
	ln.set("level", levelName(r.Level))
	if asJSON {
		ln.set("ts_unix_nano", ts.UnixNano())
	}
	for _, f := range h.preset {
		ln.set(f.key, f.val)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(ln, h.prefix, a)
		return true
	})
	fromContext(ctx, ln)
	ln.finish(r.Message, asJSON)

	var out []byte
	if asJSON {
		var err error
		if out, err = ln.json(h.rank); err != nil {
			return err
		}
	} else {
		out = ln.kv(h.rank)
	}
	return h.cfg.writer.Write(append(out, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	tmp := newLine(len(attrs))
	for _, a := range attrs {
		collect(tmp, h.prefix, a)
	}
	clone := *h
	clone.preset = append(append([]field(nil), h.preset...), tmp.fields...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = join(h.prefix, name)
	return &clone
}

// line is the ordered field set of one record. Setting a key again replaces
// its value in place.
type line struct {
	idx    map[string]int
	fields []field
}

func newLine(n int) *line {
	return &line{idx: make(map[string]int, n), fields: make([]field, 0, n)}
}

func (l *line) set(key string, val any) {
	if i, ok := l.idx[key]; ok {
		l.fields[i].val = val
		return
	}
	l.idx[key] = len(l.fields)
	l.fields = append(l.fields, field{key: key, val: val})
}

func (l *line) setDefault(key string, val any) {
	if _, ok := l.idx[key]; !ok {
		l.set(key, val)
	}
}

func (l *line) str(key string) string {
	i, ok := l.idx[key]
	if !ok {
		return ""
	}
	switch v := l.fields[i].val.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// finish fills line defaults, compacts the rid and drops empty or invalid
// values.
func (l *line) finish(msg string, asJSON bool) {
	if l.str("event") == "" {
		switch {
		case msg != "":
			l.set("event", msg)
		default:
			l.set("event", "unknown")
		}
	}
	if l.str("component") == "" {
		l.set("component", "app")
	}
	if rid := l.str("rid"); rid != "" {
		if short := CompactRID(rid); short != rid {
			l.set("rid", short)
			if asJSON {
				l.setDefault("rid_full", rid)
			}
		}
	}
	for key, enum := range enums {
		raw := l.str(key)
		if raw == "" {
			continue
		}
		v, ok := enum.normalize(raw)
		switch {
		case ok, enum.keepUnknown:
			l.set(key, v)
		default:
			l.set(key, nil)
		}
	}

	kept := l.fields[:0]
	for _, f := range l.fields {
		if isEmpty(f.val) {
			delete(l.idx, f.key)
			continue
		}
		kept = append(kept, f)
	}
	l.fields = kept
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case fmt.Stringer:
		return x.String() == ""
	}
	return false
}

func (l *line) sorted(rank map[string]int) []field {
	out := append([]field(nil), l.fields...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i].key]
		rj, jok := rank[out[j].key]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return out[i].key < out[j].key
	})
	return out
}

func (l *line) json(rank map[string]int) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, f := range l.sorted(rank) {
		val, err := json.Marshal(f.val)
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", f.key, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(f.key)
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (l *line) kv(rank map[string]int) []byte {
	var b bytes.Buffer
	for i, f := range l.sorted(rank) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(kvValue(f.val))
	}
	return b.Bytes()
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	default:
		s = fmt.Sprint(x)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}

func join(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// collect flattens a into l, walking groups with dotted keys.
func collect(l *line, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := join(prefix, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			collect(l, key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := convert(key, a.Value); ok {
		l.set(k, v)
	}
}

// convert maps a slog value onto what gets printed. Durations become whole
// milliseconds under a _ms key.
func convert(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	case string:
		return key, strings.TrimSpace(x), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationKey names the millisecond form of a duration attribute:
// "elapsed" becomes "elapsed_ms"; keys already ending in _ms are kept.
func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

// fromContext adds the correlation fields carried by ctx unless the record
// set them explicitly.
func fromContext(ctx context.Context, l *line) {
	if ctx == nil {
		return
	}
	if v := RIDFrom(ctx); v != "" {
		l.setDefault("rid", v)
	}
	if v := UpdateIDFrom(ctx); v != 0 {
		l.setDefault("update_id", v)
	}
	if v := UserIDFrom(ctx); v != 0 {
		l.setDefault("user_id", v)
	}
	if v := ChatIDFrom(ctx); v != 0 {
		l.setDefault("chat_id", v)
	}
	if v := HandlerFrom(ctx); v != "" {
		l.setDefault("handler", v)
	}
	if v := FlowIDFrom(ctx); v != "" {
		l.setDefault("flow_id", v)
	}
}
