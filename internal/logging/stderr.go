package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// bracketHandler renders one line per record as "[ERROR] msg", "[WARN.]
// msg", or "[INFO.] msg". Structured args are appended as key=value pairs
// after the message, the same way slog's TextHandler would, just without
// slog's own level/time prefix.
type bracketHandler struct {
	mu  *sync.Mutex
	out io.Writer
}

func newBracketHandler(out io.Writer) *bracketHandler {
	return &bracketHandler{mu: &sync.Mutex{}, out: out}
}

func (h *bracketHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *bracketHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := fmt.Fprintf(h.out, "%s %s", prefix(r.Level), r.Message); err != nil {
		return err
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	_, err := fmt.Fprintln(h.out)
	return err
}

func (h *bracketHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *bracketHandler) WithGroup(name string) slog.Handler       { return h }

func prefix(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "[ERROR]"
	case level >= slog.LevelWarn:
		return "[WARN.]"
	default:
		return "[INFO.]"
	}
}

// NewStderr returns the local-stream sink: bracketed severity tags written
// to standard error.
func NewStderr() Logger {
	return slogLogger{logger: slog.New(newBracketHandler(os.Stderr))}
}
