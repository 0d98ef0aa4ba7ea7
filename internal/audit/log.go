package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"opsdeck.io/internal/auth"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Log emits audit events for identity actions (logins, refreshes, approvals).
type Log struct {
	logger *zap.Logger
}

// NewLog wraps a zap logger for audit emission.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Event writes an audit entry enriched with request and actor context.
func (l *Log) Event(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := []zap.Field{zap.String("type", "audit")}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry = append(entry, zap.String("request_id", rid))
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		entry = append(entry, zap.String("actor_id", id.Subject))
	}
	entry = append(entry, fields...)
	l.logger.Info(event, entry...)
	return nil
}
