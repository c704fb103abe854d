// Package director executes action lists: it owns the runs, steps their
// branches one cooperative tick at a time, applies ending policies, and
// publishes structured events to subscribers.
package director

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind names what happened.
type EventKind string

// Event kinds published by the director.
const (
	EventRunStarted    EventKind = "run.started"
	EventRunFinished   EventKind = "run.finished"
	EventRunPaused     EventKind = "run.paused"
	EventRunResumed    EventKind = "run.resumed"
	EventRunStopped    EventKind = "run.stopped"
	EventRunSkipping   EventKind = "run.skipping"
	EventBreakpointHit EventKind = "breakpoint.hit"
	EventNodeStarted   EventKind = "node.started"
	EventNodeFinished  EventKind = "node.finished"
	EventLine          EventKind = "line"
	EventVarChanged    EventKind = "var.changed"
	EventCustom        EventKind = "custom"
)

// Event is one observable occurrence in the engine. Events flow to console
// watchers, the websocket feed, and the playback tool.
type Event struct {
	Tick   uint64    `json:"tick"`
	Time   time.Time `json:"time"`
	Kind   EventKind `json:"kind"`
	Run    uuid.UUID `json:"run,omitempty"`
	List   string    `json:"list,omitempty"`
	Node   string    `json:"node,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// String formats the event for line-oriented sinks.
func (e Event) String() string {
	s := fmt.Sprintf("[%6d] %-15s", e.Tick, e.Kind)
	if e.List != "" {
		s += " " + e.List
		if e.Node != "" {
			s += "/" + e.Node
		}
	}
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	return s
}
