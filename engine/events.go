package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	// Queue events
	EventMutationEnqueued EventType = iota + 1
	EventMutationDismissed
	EventMutationRetried
	EventDrainStarted
	EventDrainCompleted
	EventDrainHalted

	// Snapshot events
	EventSnapshotApplied
	EventSnapshotFailed
	EventRefreshRequested

	// Session and scope events
	EventSessionStarted
	EventSessionEnded
	EventAuthRequired
	EventProjectSwitched

	// Connectivity
	EventConnectivityChanged

	// Site events
	EventRequisitionStatusChanged
)

var eventNames = map[EventType]string{
	EventMutationEnqueued:         "mutation-enqueued",
	EventMutationDismissed:        "mutation-dismissed",
	EventMutationRetried:          "mutation-retried",
	EventDrainStarted:             "drain-started",
	EventDrainCompleted:           "drain-completed",
	EventDrainHalted:              "drain-halted",
	EventSnapshotApplied:          "snapshot-applied",
	EventSnapshotFailed:           "snapshot-failed",
	EventRefreshRequested:         "refresh-requested",
	EventSessionStarted:           "session-started",
	EventSessionEnded:             "session-ended",
	EventAuthRequired:             "auth-required",
	EventProjectSwitched:          "project-switched",
	EventConnectivityChanged:      "connectivity",
	EventRequisitionStatusChanged: "requisition-status",
}

func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

// Event is the envelope emitted by the Engine's EventBus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

type MutationEnqueuedEvent struct {
	ID        int64           `json:"id"`
	ClientRef string          `json:"client_ref"`
	ProjectID string          `json:"project_id"`
	ItemID    string          `json:"item_id"`
	Kind      string          `json:"kind"`
	Delta     decimal.Decimal `json:"delta"`
}

// MutationEvent is emitted when the user acts on a queued mutation.
type MutationEvent struct {
	ID        int64  `json:"id"`
	ClientRef string `json:"client_ref,omitempty"`
}

type DrainStartedEvent struct {
	Pending int `json:"pending"`
}

type DrainCompletedEvent struct {
	Delivered int `json:"delivered"`
}

// DrainHaltedEvent is emitted when a mutation fails and the queue stops.
type DrainHaltedEvent struct {
	MutationID int64  `json:"mutation_id"`
	Delivered  int    `json:"delivered"`
	ErrorKind  string `json:"error_kind"` // connectivity, validation, auth, storage or unknown
	Error      string `json:"error"`
}

type SnapshotAppliedEvent struct {
	ProjectID string        `json:"project_id"`
	Rows      int           `json:"rows"`
	Rebased   int           `json:"rebased"`
	Took      time.Duration `json:"took"`
}

type SnapshotFailedEvent struct {
	ProjectID string `json:"project_id"`
	ErrorKind string `json:"error_kind"`
	Error     string `json:"error"`
}

// RefreshRequestedEvent asks for a snapshot download outside the usual triggers.
type RefreshRequestedEvent struct {
	Reason string `json:"reason"`
}

type SessionEvent struct {
	UserID string `json:"user_id"`
}

// AuthRequiredEvent is emitted when the backend rejects the session.
type AuthRequiredEvent struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

type ProjectSwitchedEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ConnectivityEvent struct {
	Online bool   `json:"online"`
	Error  string `json:"error,omitempty"`
}

type RequisitionStatusChangedEvent struct {
	RequisitionID string `json:"requisition_id"`
	OldStatus     string `json:"old_status"`
	NewStatus     string `json:"new_status"`
}
