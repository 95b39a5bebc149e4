// Package events carries worker pool lifecycle notifications to observers
// such as the monitor's websocket stream.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventWorkerStarted is emitted when a worker goroutine enters its loop
	EventWorkerStarted EventType = "worker_started"
	// EventWorkerExited is emitted when a worker goroutine leaves its loop
	EventWorkerExited EventType = "worker_exited"
	// EventJobFailed is emitted when a job panics
	EventJobFailed EventType = "job_failed"
	// EventPoolShutdown is emitted when the pool stops accepting jobs
	EventPoolShutdown EventType = "pool_shutdown"
	// EventPoolTerminated is emitted after every worker has been joined
	EventPoolTerminated EventType = "pool_terminated"
)

// Event represents a pool lifecycle event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  int       `json:"worker_id,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
	Pending int    `json:"pending,omitempty"`
	Alive   int    `json:"alive,omitempty"`
}

// NewWorkerStartedEvent creates a worker start event
func NewWorkerStartedEvent(workerID int) Event {
	return Event{
		Type:      EventWorkerStarted,
		Timestamp: time.Now(),
		WorkerID:  workerID,
	}
}

// NewWorkerExitedEvent creates a worker exit event; reason is "drained" or "job_failed"
func NewWorkerExitedEvent(workerID int, reason string) Event {
	return Event{
		Type:      EventWorkerExited,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			Reason: reason,
		},
	}
}

// NewJobFailedEvent creates a job failure event
func NewJobFailedEvent(workerID int, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventJobFailed,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			Error: errMsg,
		},
	}
}

// NewPoolShutdownEvent creates a shutdown event with the backlog left to drain
func NewPoolShutdownEvent(pending int) Event {
	return Event{
		Type:      EventPoolShutdown,
		Timestamp: time.Now(),
		Data: EventData{
			Pending: pending,
		},
	}
}

// NewPoolTerminatedEvent creates a termination event
func NewPoolTerminatedEvent() Event {
	return Event{
		Type:      EventPoolTerminated,
		Timestamp: time.Now(),
	}
}
