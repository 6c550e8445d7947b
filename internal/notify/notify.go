package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	"git.home.luguber.info/inful/laundrycycle/internal/logfields"
)

// Notification announces that an entity reached a stage.
type Notification struct {
	EntityID   string      `json:"entity_id"`
	EntityName string      `json:"entity_name"`
	From       cycle.Stage `json:"from"`
	To         cycle.Stage `json:"to"`
	Cause      cycle.Cause `json:"cause"`
	At         time.Time   `json:"at"`
}

// FromEntry builds a notification for a committed transition.
func FromEntry(e cycle.Entity, entry cycle.LogEntry) Notification {
	return Notification{
		EntityID:   e.ID,
		EntityName: e.Name,
		From:       entry.From,
		To:         entry.To,
		Cause:      entry.Cause,
		At:         entry.At,
	}
}

// Sink receives notifications.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// LogSink writes each notification to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Stage reached",
		logfields.EntityID(n.EntityID),
		logfields.EntityName(n.EntityName),
		logfields.FromStage(string(n.From)),
		logfields.ToStage(string(n.To)),
		logfields.Cause(string(n.Cause)))
	return nil
}

// MultiSink fans a notification out to every sink. All sinks are tried; the
// failures are joined.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
