/*

This file contains the agent lifecycle event types. Events fire synchronously
to zero or more subscribers; a panicking subscriber is isolated and logged.

*/

package types

import (
	"time"
)

// EventType names an agent lifecycle event.
type EventType string

const (
	EventStarted            EventType = "started"
	EventStopped            EventType = "stopped"
	EventScanCompleted      EventType = "scan_completed"
	EventOpportunityFound   EventType = "opportunity_found"
	EventExecutionStarted   EventType = "execution_started"
	EventExecutionCompleted EventType = "execution_completed"
	EventError              EventType = "error"
	EventPaused             EventType = "paused"
	EventResumed            EventType = "resumed"
)

// Event is one emitted lifecycle event.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}
