// Package logwriter provides the task log's slog handler and rolling file
// sink. Every task, group, and HTTP action log line lands in one file with
// the shape "<ISO-timestamp> - <LEVEL> - <message> [attr=value ...]", the
// line shape internal/logfilter parses back out. Rotation is lumberjack's,
// capped at 1 MiB across 3 generations, mirroring the original task
// runner's RotatingFileHandler configuration.
package logwriter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelCritical is one step above slog.LevelError, for conditions the task
// runner surfaces as CRITICAL in its log (matching the original five-level
// vocabulary: DEBUG/INFO/WARNING/ERROR/CRITICAL).
const LevelCritical slog.Level = slog.LevelError + 4

const (
	maxSizeMB  = 1
	maxBackups = 3
)

// New opens (creating directories as needed) the rolling task log at
// <dataDir>/logs/tasks.log and returns a ready-to-use *slog.Logger plus the
// underlying writer, which callers should keep alive for the process
// lifetime (it satisfies io.Closer).
func New(dataDir string, level slog.Leveler) (*slog.Logger, *lumberjack.Logger, error) {
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, nil, fmt.Errorf("creating log directory %q: %w", logDir, err)
	}

	w := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "tasks.log"),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   false,
	}

	h := NewHandler(w, level)
	return slog.New(h), w, nil
}

// Handler is a slog.Handler emitting the task log's plain-text line shape.
// It intentionally ignores groups: the task log is a flat line-oriented
// format, not a structured one.
type Handler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Leveler
	attrs []slog.Attr
}

// NewHandler returns a Handler writing to out, filtering below level.
func NewHandler(out io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{mu: &sync.Mutex{}, out: out, level: level}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler, writing one line per record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	attrs := append([]slog.Attr{}, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	var buf bytes.Buffer
	writeLine(&buf, r.Time, r.Level, r.Message, attrs)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &Handler{mu: h.mu, out: h.out, level: h.level}
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return next
}

// WithGroup implements slog.Handler; groups are not represented in the
// flat task-log line shape, so it is a no-op.
func (h *Handler) WithGroup(_ string) slog.Handler { return h }

// levelName renders a slog.Level using the five-word vocabulary the
// original task runner's log lines use.
func levelName(l slog.Level) string {
	switch {
	case l >= LevelCritical:
		return "CRITICAL"
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05,000")
}

func writeLine(buf *bytes.Buffer, ts time.Time, level slog.Level, msg string, attrs []slog.Attr) {
	fmt.Fprintf(buf, "%s - %s - %s", formatTimestamp(ts), levelName(level), msg)
	for _, a := range attrs {
		fmt.Fprintf(buf, " %s=%v", a.Key, a.Value.Any())
	}
	buf.WriteByte('\n')
}
