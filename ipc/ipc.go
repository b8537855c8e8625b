// Package ipc carries result and phase events from a test child process
// back to the orchestrator over an inherited pipe. Events are
// newline-delimited JSON, written by exactly one child at a time and
// applied by a reader goroutine on the orchestrator side.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/crucible-run/crucible/model"
)

// EventType discriminates the payload of an Event.
type EventType string

const (
	// EventResult carries a counted result kind.
	EventResult EventType = "result"
	// EventPhase carries a phase transition.
	EventPhase EventType = "phase"
)

// Event is one message on the child-to-orchestrator channel.
type Event struct {
	Type  EventType   `json:"type"`
	Kind  model.Kind  `json:"kind,omitempty"`
	Phase model.Phase `json:"phase,omitempty"`
}

// Encoder serializes events onto the child's end of the pipe.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing newline-delimited JSON to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// SendResult forwards a counted result to the orchestrator.
func (e *Encoder) SendResult(kind model.Kind) error {
	return e.send(Event{Type: EventResult, Kind: kind})
}

// SendPhase forwards a phase transition to the orchestrator.
func (e *Encoder) SendPhase(phase model.Phase) error {
	return e.send(Event{Type: EventPhase, Phase: phase})
}

func (e *Encoder) send(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(ev); err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return nil
}

// Handler receives decoded events on the orchestrator side.
type Handler interface {
	ApplyResult(kind model.Kind)
	ApplyPhase(phase model.Phase)
}

// Forward decodes events from r until EOF and applies each one to h.
// Unknown event types are ignored so that newer children remain
// readable by an older orchestrator.
func Forward(r io.Reader, h Handler) error {
	dec := json.NewDecoder(r)
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode event: %w", err)
		}
		switch ev.Type {
		case EventResult:
			h.ApplyResult(ev.Kind)
		case EventPhase:
			h.ApplyPhase(ev.Phase)
		}
	}
}
