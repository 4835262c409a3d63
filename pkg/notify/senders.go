package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LogSender writes notifications to the structured log. It is the default driver.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Name implements Sender.
func (s *LogSender) Name() string { return "log" }

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Warn("operator notification",
		zap.String("kind", string(n.Kind)),
		zap.String("subject", n.Subject),
		zap.String("body", n.Body),
		zap.Strings("recipients", n.Recipients))
	return nil
}

// Publisher is the subset of *nats.Conn used by NATSSender.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSender publishes notifications as JSON events for external SMS or chat workers.
type NATSSender struct {
	pub     Publisher
	subject string
	source  string
}

// NewNATSSender constructs a NATSSender.
func NewNATSSender(pub Publisher, subject, source string) *NATSSender {
	return &NATSSender{pub: pub, subject: subject, source: source}
}

type natsEvent struct {
	Source       string       `json:"source"`
	Notification Notification `json:"notification"`
	SentAt       time.Time    `json:"sentAt"`
}

// Name implements Sender.
func (s *NATSSender) Name() string { return "nats" }

// Send implements Sender.
func (s *NATSSender) Send(_ context.Context, n Notification) error {
	payload, err := json.Marshal(natsEvent{Source: s.source, Notification: n, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.pub.Publish(s.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", s.subject, err)
	}
	return nil
}

// MultiSender fans a notification out to every sender and joins their errors.
type MultiSender []Sender

// Name implements Sender.
func (m MultiSender) Name() string { return "multi" }

// Send implements Sender. One failing sender does not stop the others.
func (m MultiSender) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
