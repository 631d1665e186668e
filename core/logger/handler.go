package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type encoding int

const (
	encJSON encoding = iota
	encKV
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// keyOrder puts the fields most useful when reading postbot logs first.
// Keys not listed follow in lexical order.
var keyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "handler",
	"action", "state", "next_state", "cb_key", "outcome", "duration_ms",
	"channel", "channels", "message_id", "shape", "media", "buttons",
	"succeeded", "failed", "pinned", "count", "sent",
	"endpoint", "kind", "mode", "listen", "http_code", "db", "file",
	"err", "err_code", "retryable", "attempt", "backoff_ms",
}

// Enumerated fields. status keeps unknown values; cache and outcome drop them.
var (
	cacheValues   = set("hit", "miss", "refresh")
	outcomeValues = set("ok", "fail", "partial", "rejected", "cancelled", "rate_limited")
)

func set(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// handler writes one line per record, as JSON or as key=value pairs, with
// the update identifiers from the context filled in.
type handler struct {
	level slog.Leveler
	out   io.Writer
	enc   encoding
	order []string
	group string
	base  fields
}

func newHandler(out io.Writer, level slog.Leveler, enc encoding, order []string) *handler {
	if level == nil {
		level = slog.LevelInfo
	}
	if order == nil {
		order = keyOrder
	}
	return &handler{level: level, out: out, enc: enc, order: order, base: fields{}}
}

func (h *handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	f := make(fields, len(h.base)+r.NumAttrs()+8)
	for k, v := range h.base {
		f[k] = v
	}
	ts := r.Time.UTC()
	f["ts"] = ts.Truncate(time.Millisecond).Format(tsLayout)
	f["level"] = levelName(r.Level)
	if h.enc == encJSON {
		f["ts_unix_nano"] = ts.UnixNano()
	}
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.group, a)
		return true
	})
	f.fill(ctx, r.Message, h.enc == encJSON)
	f.normalize()

	var line []byte
	if h.enc == encJSON {
		var err error
		if line, err = f.json(h.order); err != nil {
			return err
		}
	} else {
		line = f.kv(h.order)
	}
	_, err := h.out.Write(append(line, '\n'))
	return err
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.base = make(fields, len(h.base)+len(attrs))
	for k, v := range h.base {
		c.base[k] = v
	}
	for _, a := range attrs {
		c.base.add(h.group, a)
	}
	return &c
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.group = joinKey(h.group, name)
	return &c
}

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

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// fields holds the flattened attributes of one record.
type fields map[string]any

func (f fields) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := convert(key, v); ok {
		f[k] = val
	}
}

// convert maps a slog value to what gets encoded. Durations become integer
// milliseconds under a key ending in _ms.
func convert(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, Redact(x.Error()), true
	case time.Duration:
		return msKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func (f fields) str(key string) string {
	s, _ := f[key].(string)
	return s
}

func (f fields) setIfMissing(key string, val any, ok bool) {
	if _, seen := f[key]; ok && !seen {
		f[key] = val
	}
}

// fill adds the context identifiers and the event and component defaults.
func (f fields) fill(ctx context.Context, msg string, full bool) {
	if ctx != nil {
		m := metaFrom(ctx)
		rid := RIDFrom(ctx)
		f.setIfMissing("rid", rid, rid != "")
		f.setIfMissing("update_id", m.UpdateID, m.UpdateID != 0)
		f.setIfMissing("user_id", m.UserID, m.UserID != 0)
		f.setIfMissing("chat_id", m.ChatID, m.ChatID != 0)
		h := HandlerFrom(ctx)
		f.setIfMissing("handler", h, h != "")
	}
	if rid := f.str("rid"); rid != "" {
		if short := CompactRID(rid); short != rid {
			if full {
				f.setIfMissing("rid_full", rid, true)
			}
			f["rid"] = short
		}
	}
	if f.str("event") == "" {
		if msg == "" {
			msg = "unknown"
		}
		f["event"] = msg
	}
	if f.str("component") == "" {
		f["component"] = CompApp
	}
}

func (f fields) normalize() {
	if s := f.str("status"); s != "" {
		f["status"] = strings.ToLower(s)
	}
	for key, allowed := range map[string]map[string]bool{"cache": cacheValues, "outcome": outcomeValues} {
		if s, ok := f[key].(string); ok {
			s = strings.ToLower(s)
			if allowed[s] {
				f[key] = s
			} else {
				delete(f, key)
			}
		}
	}
	for k, v := range f {
		if v == nil || v == "" {
			delete(f, k)
		}
	}
}

// keys lists the ordered keys present in f, then the rest sorted.
func (f fields) keys(order []string) []string {
	out := make([]string, 0, len(f))
	listed := make(map[string]bool, len(order))
	for _, k := range order {
		listed[k] = true
		if _, ok := f[k]; ok {
			out = append(out, k)
		}
	}
	n := len(out)
	for k := range f {
		if !listed[k] {
			out = append(out, k)
		}
	}
	slices.Sort(out[n:])
	return out
}

func (f fields) json(order []string) ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range f.keys(order) {
		v, err := json.Marshal(f[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, k)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

func (f fields) kv(order []string) []byte {
	var buf []byte
	for i, k := range f.keys(order) {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		s := fmt.Sprint(f[k])
		if strings.IndexFunc(s, mustQuote) >= 0 {
			buf = strconv.AppendQuote(buf, s)
		} else {
			buf = append(buf, s...)
		}
	}
	return buf
}

func mustQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
