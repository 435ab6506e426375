// Package audit records relayed calls. It is only constructed when enabled
// in config; callers treat a nil Recorder as disabled.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/astro-web3/token-relay/pkg/logger"
)

type Event struct {
	Subject  string
	Upstream string
	Method   string
	Path     string
	Status   int
	Relayed  bool
	Duration time.Duration
	Err      error
}

type Recorder interface {
	Record(ctx context.Context, event Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, event Event)

func (f RecorderFunc) Record(ctx context.Context, event Event) {
	f(ctx, event)
}

// NewLogRecorder writes one structured log line per event.
func NewLogRecorder() Recorder {
	return RecorderFunc(func(ctx context.Context, e Event) {
		attrs := []slog.Attr{
			slog.String("subject", e.Subject),
			slog.String("upstream", e.Upstream),
			slog.String("method", e.Method),
			slog.String("path", e.Path),
			slog.Int("status", e.Status),
			slog.Bool("relayed", e.Relayed),
			slog.Duration("duration", e.Duration),
		}
		if e.Err != nil {
			attrs = append(attrs, slog.String("error", e.Err.Error()))
		}
		logger.InfoContext(ctx, "audit: relayed call", attrs...)
	})
}
