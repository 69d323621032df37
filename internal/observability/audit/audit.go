// Package audit emits one structured record per tool invocation.
package audit

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With("component", "audit")}
}

func (l *Logger) Record(ctx context.Context, event domain.ToolInvocationAudit) {
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	arguments := event.Arguments
	if arguments == nil {
		arguments = map[string]any{}
	}

	attrs := []slog.Attr{
		slog.String("event", "tool_invocation"),
		slog.String("tool", event.Tool),
		slog.String("status", string(event.Status)),
		slog.String("request_id", event.RequestID),
		slog.Float64("duration_ms", durationMillis(event.Duration)),
		slog.Any("arguments", arguments),
		slog.String("timestamp", timestamp.UTC().Format(time.RFC3339Nano)),
	}
	if event.ClientID != "" {
		attrs = append(attrs, slog.String("client_id", event.ClientID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}

	level := slog.LevelInfo
	if event.Status == domain.InvocationError {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, "tool_invocation", attrs...)
}

func durationMillis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
