package worker

import (
	"context"
	"log/slog"

	"seminar-attendance/internal/metrics"
	"seminar-attendance/internal/queue"
)

// Counter keeps the per-seminar presence count.
type Counter interface {
	Arrive(ctx context.Context, seminarID string) (int64, error)
	Leave(ctx context.Context, seminarID string) (int64, error)
}

// Worker applies attendance events to a Counter.
type Worker struct {
	counter Counter
	logger  *slog.Logger
}

func New(counter Counter, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{counter: counter, logger: logger}
}

// Run consumes q until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("worker started, waiting for messages")
	for msg := range messages {
		w.Handle(ctx, msg)
	}
	w.logger.Info("worker stopped")
	return nil
}

// Handle applies one message. Failures are logged and counted, never retried.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	evt, err := msg.Event()
	if err != nil {
		metrics.QueueEvents.WithLabelValues(msg.Type, "malformed").Inc()
		w.logger.Warn("malformed event", "type", msg.Type, "error", err)
		return
	}

	var n int64
	switch msg.Type {
	case queue.TypeCheckedIn:
		n, err = w.counter.Arrive(ctx, evt.SeminarID)
	case queue.TypeCheckedOut:
		n, err = w.counter.Leave(ctx, evt.SeminarID)
	default:
		metrics.QueueEvents.WithLabelValues(msg.Type, "ignored").Inc()
		return
	}
	if err != nil {
		metrics.QueueEvents.WithLabelValues(msg.Type, "failed").Inc()
		w.logger.Error("headcount update failed", "event_id", evt.ID, "seminar_id", evt.SeminarID, "error", err)
		return
	}
	metrics.QueueEvents.WithLabelValues(msg.Type, "processed").Inc()
	w.logger.Info("event processed",
		"event_id", evt.ID,
		"type", msg.Type,
		"seminar_id", evt.SeminarID,
		"participant_email", evt.ParticipantEmail,
		"present", n,
	)
}
