// Package events announces the outcome of each firing to interested
// consumers over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomePosted  Outcome = "posted"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeAborted Outcome = "aborted"
)

type FiringEvent struct {
	ID         string    `json:"id"`
	FiringID   string    `json:"firing_id"`
	ScheduleID uint      `json:"schedule_id"`
	UserID     uint      `json:"user_id"`
	Slot       string    `json:"slot"`
	Platform   string    `json:"platform,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	PostID     uint      `json:"post_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	FiredAt    time.Time `json:"fired_at"`
}

// Sink receives firing events. Implementations must not block for long;
// callers only log a returned error.
type Sink interface {
	Emit(ctx context.Context, event FiringEvent) error
	Close() error
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSink publishes each event on "<prefix>.<outcome>".
type NATSSink struct {
	nc     conn
	prefix string
	logger *zap.Logger
}

// Connect dials url and returns a sink bound to it.
func Connect(url, prefix string, logger *zap.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("postpilot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return newNATSSink(nc, prefix, logger), nil
}

func newNATSSink(nc conn, prefix string, logger *zap.Logger) *NATSSink {
	return &NATSSink{nc: nc, prefix: prefix, logger: logger}
}

func (s *NATSSink) Emit(ctx context.Context, event FiringEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal firing event: %w", err)
	}

	subject := s.Subject(event.Outcome)
	if err := s.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish firing event: %w", err)
	}

	s.logger.Debug("Firing event sent",
		zap.String("subject", subject),
		zap.String("firing_id", event.FiringID),
		zap.Uint("schedule_id", event.ScheduleID))
	return nil
}

func (s *NATSSink) Subject(outcome Outcome) string {
	return s.prefix + "." + string(outcome)
}

func (s *NATSSink) Close() error {
	return s.nc.Drain()
}

// NoopSink drops every event; used when no NATS url is configured.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (NoopSink) Emit(ctx context.Context, event FiringEvent) error { return nil }

func (NoopSink) Close() error { return nil }

var (
	_ Sink = (*NATSSink)(nil)
	_ Sink = (*NoopSink)(nil)
)
