// Package alerting delivers security alerts for suspicious admission
// outcomes. Alerts are advisory: a delivery failure never blocks or fails
// the request that raised it.
package alerting

import (
	"context"
	"log/slog"
	"time"
)

// Alert is one suspicious-activity notification.
type Alert struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	DeviceID  string    `json:"device_id"`
	IPAddress string    `json:"ip_address"`
	Message   string    `json:"message"`
}

// Publisher delivers alerts to whatever notification fan-out is configured.
type Publisher interface {
	Publish(ctx context.Context, alert *Alert) error
	Close()
}

// LogPublisher writes alerts to the process log. It is the fallback used
// when no message broker is configured.
type LogPublisher struct{}

func (l *LogPublisher) Publish(ctx context.Context, alert *Alert) error {
	slog.Warn("SECURITY ALERT: "+alert.Message,
		slog.String("event_type", alert.EventType),
		slog.String("device_id", alert.DeviceID),
		slog.String("ip", alert.IPAddress),
	)
	return nil
}

func (l *LogPublisher) Close() {}
