// Package events defines the job event model and the sinks that receive it.
package events

import (
	"sync"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	TypeProgress   Type = "progress"
	TypeOutputLine Type = "output-line"
	TypeErrorLine  Type = "error-line"
	TypeCompleted  Type = "completed"
	TypeFailed     Type = "failed"
	TypeCancelled  Type = "cancelled"
)

// Terminal reports whether t ends a job.
func (t Type) Terminal() bool {
	switch t {
	case TypeCompleted, TypeFailed, TypeCancelled:
		return true
	default:
		return false
	}
}

// Progress is the payload of a progress event. Percentage is always in [0,100]
// when set.
type Progress struct {
	CurrentSeconds *float64 `json:"current_seconds,omitempty"`
	TotalSeconds   *float64 `json:"total_seconds,omitempty"`
	Percentage     *float64 `json:"percentage,omitempty"`
}

// Event is one observation about a job. Seq increases by one per event
// within a job, starting at 1.
type Event struct {
	JobID string    `json:"job_id"`
	Seq   uint64    `json:"seq"`
	Time  time.Time `json:"time"`
	Type  Type      `json:"type"`

	Progress *Progress `json:"progress,omitempty"`

	// Text is the raw line of output-line and error-line events.
	Text string `json:"text,omitempty"`

	// Message accompanies completed and cancelled events.
	Message string `json:"message,omitempty"`

	// Reason and ExitCode describe a failed event.
	Reason   string `json:"reason,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// Sink receives events. Emit must not block for long and must not call back
// into the component that emitted the event.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Multi fans each event out to every non-nil sink, in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Recorder keeps every event in memory. Used by tests and the run summary.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
