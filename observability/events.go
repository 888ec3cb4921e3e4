package observability

import (
	"log/slog"

	"escrowd/events"
)

// LogEmitter forwards engine events to a structured logger. It is the default
// emitter wired by the daemon; indexers can replace it with their own.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements events.Emitter.
func (l *LogEmitter) Emit(evt *events.Event) {
	if l == nil || evt == nil {
		return
	}
	attrs := make([]any, 0, 2*len(evt.Attributes)+2)
	attrs = append(attrs, slog.String("event", evt.Type))
	for k, v := range evt.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	l.logger.Info("escrow event", attrs...)
}
