package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Recorder accepts events from request paths and hands them to a worker via
// a buffered channel. A full buffer drops the event with a warning rather
// than stalling an issuance.
type Recorder struct {
	sink   Sink
	inbox  chan Event
	logger *slog.Logger
}

// NewRecorder constructs a Recorder with the given buffer size.
func NewRecorder(sink Sink, buffer int, logger *slog.Logger) *Recorder {
	if buffer < 1 {
		buffer = 64
	}
	return &Recorder{
		sink:   sink,
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Emit enqueues an event, filling in its ID and timestamp.
func (r *Recorder) Emit(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case r.inbox <- event:
	default:
		r.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"subject", event.SubjectKey,
		)
	}
}

// Run drains the inbox into the sink until ctx is cancelled. Publish
// failures are logged and skipped; audit delivery is best-effort.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-r.inbox:
			if err := r.sink.Publish(ctx, event); err != nil {
				r.logger.ErrorContext(ctx, "audit publish failed",
					"action", event.Action,
					"error", err,
				)
			}
		}
	}
}
