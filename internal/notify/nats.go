package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
)

// publisher is the part of *nats.Conn the sink needs.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSSink publishes notifications as JSON on a NATS subject. The entity id is
// appended to the subject so subscribers can filter with a wildcard.
type NATSSink struct {
	conn    *nats.Conn
	pub     publisher
	subject string
}

// NewNATSSink connects to url and returns a sink publishing under subject.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("laundrycycle"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Info("NATS notification sink initialized", slog.String("url", url), slog.String("subject", subject))
	return &NATSSink{conn: conn, pub: conn, subject: subject}, nil
}

func newNATSSinkWithPublisher(pub publisher, subject string) *NATSSink {
	return &NATSSink{pub: pub, subject: subject}
}

// Subject returns the subject a notification is published on.
func (s *NATSSink) Subject(n Notification) string {
	return s.subject + "." + n.EntityID
}

func (s *NATSSink) Notify(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.pub.Publish(s.Subject(n), data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	if err := s.pub.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush notification: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
