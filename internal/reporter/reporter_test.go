package reporter

import (
	"testing"

	"github.com/andreabozzo/ares/internal/obslog"
)

type countingReporter struct {
	calls int
	last  Event
}

func (c *countingReporter) Report(e Event) {
	c.calls++
	c.last = e
}

func TestMultiFansOutToEveryReporter(t *testing.T) {
	a := &countingReporter{}
	b := &countingReporter{}
	m := Multi{a, b}

	m.Report(Event{Kind: EventStarted, WorkerID: "worker-1"})

	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("expected both reporters to receive the event, got a=%d b=%d", a.calls, b.calls)
	}
	if a.last.WorkerID != "worker-1" {
		t.Errorf("worker_id = %q, want worker-1", a.last.WorkerID)
	}
}

func TestMultiEmpty(t *testing.T) {
	var m Multi
	m.Report(Event{Kind: EventStopped})
}

func TestLogReporterHandlesEveryEventKindWithoutPanicking(t *testing.T) {
	r := NewLogReporter(obslog.Nop)
	kinds := []EventKind{
		EventStarted, EventPolling, EventJobClaimed, EventJobStarted,
		EventJobCompleted, EventJobFailed, EventShuttingDown, EventStopped,
	}
	for _, kind := range kinds {
		r.Report(Event{Kind: kind})
	}
}
