package reporter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/andreabozzo/ares/internal/obslog"
)

// WorkerEventsStream is the Redis stream worker events are published to,
// grounded on infrastructure/events/types.go's StreamName convention.
const WorkerEventsStream = "ares-worker-events"

// envelope mirrors infrastructure/events/types.go's SourceEvent shape,
// adapted to worker events instead of source lifecycle events.
type envelope struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType EventKind `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Event     `json:"payload"`
}

// StreamReporter publishes worker events to a Redis Stream so external
// consumers (dashboards, alerting) can follow job progress without
// polling Postgres. Publish failures are logged and swallowed: losing an
// observability event must never fail a job.
type StreamReporter struct {
	client *redis.Client
	log    obslog.Logger
}

// NewStreamReporter builds a StreamReporter over an already-connected
// redis.Client.
func NewStreamReporter(client *redis.Client, log obslog.Logger) *StreamReporter {
	return &StreamReporter{client: client, log: log}
}

// Report implements Reporter.
func (r *StreamReporter) Report(e Event) {
	env := envelope{
		EventID:   uuid.New(),
		EventType: e.Kind,
		Timestamp: time.Now(),
		Payload:   e,
	}
	data, err := json.Marshal(env)
	if err != nil {
		r.log.Error("marshal worker event", obslog.Err(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: WorkerEventsStream,
		Values: map[string]any{"event": data},
	}).Err()
	if err != nil {
		r.log.Error("publish worker event", obslog.Err(err), obslog.String("kind", string(e.Kind)))
	}
}
