package loghandler

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

const timeFormat = "2006/01/02 15:04:05"

const (
	tagKey  = "tag"
	gameKey = "game"
)

// CompactHandler writes logs in a compact form: timestamp + optional prefix + message + attrs.
// Timestamp format: 2006/01/02 15:04:05 (no TZ, no milliseconds). No level is written.
// An attribute with key "tag" is rendered as "[tag]" after the timestamp; when a "game"
// attribute is also present the prefix becomes "[tag:CODE]". Both are then omitted
// from the key=value list.
type CompactHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
}

// NewCompactHandler returns a handler that writes to w with minimum level.
func NewCompactHandler(w io.Writer, level slog.Level) *CompactHandler {
	return &CompactHandler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled reports whether the handler handles records at the given level.
func (h *CompactHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats the record as: 2006/01/02 15:04:05 [tag:game] message key=value ...
// The "tag" and "game" attributes are not repeated in the key=value list.
func (h *CompactHandler) Handle(_ context.Context, r slog.Record) error {
	var tag, game string
	var rest []slog.Attr

	take := func(a slog.Attr) bool {
		switch a.Key {
		case tagKey:
			if a.Value.Kind() == slog.KindString {
				tag = a.Value.String()
			}
			return true
		case gameKey:
			if a.Value.Kind() == slog.KindString {
				game = a.Value.String()
			}
			return true
		}
		return false
	}

	for _, a := range h.attrs {
		if !take(a) {
			rest = append(rest, a)
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		if !take(a) {
			rest = append(rest, a)
		}
		return true
	})

	buf := make([]byte, 0, 256)
	buf = append(buf, r.Time.Format(timeFormat)...)
	buf = append(buf, ' ')
	if tag != "" {
		buf = append(buf, '[')
		buf = append(buf, tag...)
		if game != "" {
			buf = append(buf, ':')
			buf = append(buf, game...)
		}
		buf = append(buf, "] "...)
	}
	buf = append(buf, r.Message...)
	for _, a := range rest {
		buf = append(buf, ' ')
		buf = append(buf, a.Key...)
		buf = append(buf, '=')
		buf = append(buf, a.Value.String()...)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// WithAttrs returns a new handler that includes attrs in every record.
func (h *CompactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &CompactHandler{mu: h.mu, w: h.w, level: h.level, attrs: merged}
}

// WithGroup returns a new handler for the given group (no-op for compact output).
func (h *CompactHandler) WithGroup(name string) slog.Handler {
	return h
}
