package zapsink

import (
	"context"
	"errors"

	authcore "github.com/authcore-io/authcore"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrNilLogger is an exported constant or variable used by the authentication engine.
var ErrNilLogger = errors.New("nil logger")

// ZapSink writes audit events as structured zap log entries. Successful
// events log at Info, failed events at Warn.
//
// ZapSink instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink describes the newzapsink operation and its observable behavior.
//
// NewZapSink may return an error when input validation, dependency calls, or security checks fail.
// NewZapSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewZapSink(logger *zap.Logger) (*ZapSink, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &ZapSink{logger: logger}, nil
}

// Emit describes the emit operation and its observable behavior.
//
// Emit may return an error when input validation, dependency calls, or security checks fail.
// Emit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *ZapSink) Emit(_ context.Context, event authcore.AuditEvent) {
	if s == nil || s.logger == nil {
		return
	}

	fields := make([]zap.Field, 0, 9)
	fields = append(fields,
		zap.Time("timestamp", event.Timestamp),
		zap.Bool("success", event.Success),
	)
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		fields = append(fields, zap.String("session_id", event.SessionID))
	}
	if event.Method != "" {
		fields = append(fields, zap.String("method", event.Method))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.UserAgent))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}

	level := zapcore.InfoLevel
	if !event.Success {
		level = zapcore.WarnLevel
	}
	if entry := s.logger.Check(level, event.EventType); entry != nil {
		entry.Write(fields...)
	}
}
