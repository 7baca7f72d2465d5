package events

import (
	"context"
	"log"

	"github.com/warp/placement-engine/placement"
)

// LogPublisher writes events to the process log. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e placement.Event) error {
	log.Printf("[Events] %s consultant=%s actor=%s data=%v", e.Type, e.ConsultantID, e.ActorID, e.Data)
	return nil
}

func (LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory. Tests use it to assert on
// what the engine emitted.
type Recorder struct {
	Events []placement.Event
}

func (r *Recorder) Publish(_ context.Context, e placement.Event) error {
	r.Events = append(r.Events, e)
	return nil
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []placement.EventType {
	out := make([]placement.EventType, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}
