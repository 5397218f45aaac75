package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders records as "HH:MM:SS LEVEL message key=value ...".
// Attributes added via WithAttrs are rendered after the record's own attrs.
type consoleHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level *slog.LevelVar
	attrs []slog.Attr
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar) slog.Handler {
	return &consoleHandler{
		mu:    &sync.Mutex{},
		out:   w,
		level: lvl,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var sb strings.Builder
	sb.WriteString(record.Time.Format("15:04:05"))
	sb.WriteByte(' ')
	sb.WriteString(levelLabel(record.Level))
	sb.WriteByte(' ')
	sb.WriteString(record.Message)

	pairs := make([]string, 0, record.NumAttrs()+len(h.attrs))
	appendAttr := func(attr slog.Attr) {
		if attr.Equal(slog.Attr{}) {
			return
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", attr.Key, formatValue(attr.Value)))
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(attr)
		return true
	})
	for _, attr := range h.attrs {
		appendAttr(attr)
	}
	// Stable ordering keeps diffs in captured output deterministic.
	sort.Strings(pairs)
	for _, pair := range pairs {
		sb.WriteByte(' ')
		sb.WriteString(pair)
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &consoleHandler{mu: h.mu, out: h.out, level: h.level, attrs: merged}
}

func (h *consoleHandler) WithGroup(string) slog.Handler {
	return h
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN "
	case level >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}

func formatValue(value slog.Value) string {
	value = value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		s := value.String()
		if strings.ContainsAny(s, " \t") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		return value.Duration().String()
	default:
		return value.String()
	}
}
