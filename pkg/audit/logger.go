package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Logger persists audit events
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

// LogrusLogger writes audit events to the application log
type LogrusLogger struct {
	logger *logrus.Logger
}

// NewLogrusLogger creates a logger backed by logrus
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

// Log implements Logger
func (l *LogrusLogger) Log(_ context.Context, event *Event) error {
	fields := logrus.Fields{
		"audit":  true,
		"action": event.Action,
	}
	for k, v := range map[string]string{
		"actor_id":        event.ActorID,
		"user_id":         event.UserID,
		"organization_id": event.OrganizationID,
		"invitation_id":   event.InvitationID,
		"provider":        event.Provider,
		"request_id":      event.RequestID,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	l.logger.WithFields(fields).Info(event.Message)
	return nil
}

// Close implements Logger
func (l *LogrusLogger) Close() error { return nil }
