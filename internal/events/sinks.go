package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/audit"
	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/mqtt"
)

// AuditSink persists events to the audit log.
type AuditSink struct {
	repo audit.Repository
}

// NewAuditSink creates a sink writing to repo.
func NewAuditSink(repo audit.Repository) *AuditSink {
	return &AuditSink{repo: repo}
}

// Name implements Sink.
func (s *AuditSink) Name() string { return "audit" }

// Handle implements Sink.
func (s *AuditSink) Handle(ctx context.Context, e auth.Event) error {
	entry := &audit.Entry{
		Action:     e.Action,
		Outcome:    e.Outcome,
		Identity:   e.Identity,
		Reason:     e.Reason,
		RemoteAddr: e.RemoteAddr,
		CreatedAt:  e.At,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("audit sink: %w", err)
	}
	return nil
}

// Publisher is the part of the MQTT client the MQTT sink needs.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTSink publishes events to identity/events/<action>.
type MQTTSink struct {
	pub Publisher
}

// NewMQTTSink creates a sink publishing through pub.
func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Handle implements Sink. The context is unused: paho bounds the publish itself.
func (s *MQTTSink) Handle(_ context.Context, e auth.Event) error {
	if err := s.pub.PublishJSON(mqtt.Topics{}.SessionEvent(e.Action), e); err != nil {
		return fmt.Errorf("mqtt sink: %w", err)
	}
	return nil
}

// PointWriter is the part of the InfluxDB client the metrics sink needs.
type PointWriter interface {
	WriteSessionEvent(action, outcome string, at time.Time)
}

// InfluxSink counts events by action and outcome.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Handle implements Sink. Writes are asynchronous, so it never fails.
func (s *InfluxSink) Handle(_ context.Context, e auth.Event) error {
	s.w.WriteSessionEvent(e.Action, e.Outcome, e.At)
	return nil
}
