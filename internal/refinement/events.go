// internal/refinement/events.go
package refinement

import "time"

// EventKind names a fixed notification point in a run.
type EventKind string

const (
	EventRunStart           EventKind = "run_start"
	EventDesignStart        EventKind = "design_start"
	EventDesignComplete     EventKind = "design_complete"
	EventGenerationStart    EventKind = "generation_start"
	EventGenerationComplete EventKind = "generation_complete"
	EventEvaluationComplete EventKind = "evaluation_complete"
	EventBuildStart         EventKind = "build_start"
	EventBuildComplete      EventKind = "build_complete"
	EventIterationComplete  EventKind = "iteration_complete"
	EventSuccess            EventKind = "success"
	EventAbandoned          EventKind = "abandoned"
	EventError              EventKind = "error"
	EventRunComplete        EventKind = "run_complete"
)

// Event is the payload handed to an EventSink.
type Event struct {
	Kind        EventKind `json:"kind"`
	RunID       string    `json:"run_id"`
	ProjectName string    `json:"project_name,omitempty"`
	Iteration   int       `json:"iteration,omitempty"`
	Score       float64   `json:"score,omitempty"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	Time        time.Time `json:"time"`
}

// SinkFunc adapts a plain function to the EventSink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// MultiSink fans an event out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

type nopSink struct{}

func (nopSink) Emit(Event) {}
