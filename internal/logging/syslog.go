//go:build !windows

package logging

import (
	"context"
	"log/slog"
	"log/syslog"
)

// syslogHandler forwards each record to the system log facility at the
// matching priority.
type syslogHandler struct {
	writer *syslog.Writer
}

func (h *syslogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *syslogHandler) Handle(_ context.Context, r slog.Record) error {
	msg := r.Message
	r.Attrs(func(a slog.Attr) bool {
		msg += " " + a.Key + "=" + a.Value.String()
		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		return h.writer.Err(msg)
	case r.Level >= slog.LevelWarn:
		return h.writer.Warning(msg)
	default:
		return h.writer.Info(msg)
	}
}

func (h *syslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *syslogHandler) WithGroup(name string) slog.Handler       { return h }

// NewSyslog returns the system-log-facility sink.
func NewSyslog() (Logger, error) {
	w, err := syslog.New(syslog.LOG_DAEMON, "gridfand")
	if err != nil {
		return nil, err
	}
	return slogLogger{logger: slog.New(&syslogHandler{writer: w})}, nil
}
