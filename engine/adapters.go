package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"sitemanager/remote"
)

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// queueEmitter adapts the engine's EventBus to the queue.EventEmitter interface.
type queueEmitter struct {
	bus *EventBus
}

func (e *queueEmitter) EmitMutationEnqueued(id int64, clientRef, projectID, itemID, kind string, delta decimal.Decimal) {
	e.bus.Emit(Event{Type: EventMutationEnqueued, Payload: MutationEnqueuedEvent{
		ID: id, ClientRef: clientRef, ProjectID: projectID, ItemID: itemID, Kind: kind, Delta: delta,
	}})
}

func (e *queueEmitter) EmitMutationDismissed(id int64, clientRef string) {
	e.bus.Emit(Event{Type: EventMutationDismissed, Payload: MutationEvent{ID: id, ClientRef: clientRef}})
}

func (e *queueEmitter) EmitMutationRetried(id int64) {
	e.bus.Emit(Event{Type: EventMutationRetried, Payload: MutationEvent{ID: id}})
}

func (e *queueEmitter) EmitDrainStarted(pending int) {
	e.bus.Emit(Event{Type: EventDrainStarted, Payload: DrainStartedEvent{Pending: pending}})
}

func (e *queueEmitter) EmitDrainCompleted(delivered int) {
	e.bus.Emit(Event{Type: EventDrainCompleted, Payload: DrainCompletedEvent{Delivered: delivered}})
}

func (e *queueEmitter) EmitDrainHalted(id int64, delivered int, errKind string, err error) {
	e.bus.Emit(Event{Type: EventDrainHalted, Payload: DrainHaltedEvent{
		MutationID: id, Delivered: delivered, ErrorKind: errKind, Error: errString(err),
	}})
}

// snapshotEmitter adapts the engine's EventBus to the snapshot.Emitter interface.
type snapshotEmitter struct {
	bus *EventBus
}

func (e *snapshotEmitter) EmitSnapshotApplied(projectID string, rows, rebased int, took time.Duration) {
	e.bus.Emit(Event{Type: EventSnapshotApplied, Payload: SnapshotAppliedEvent{
		ProjectID: projectID, Rows: rows, Rebased: rebased, Took: took,
	}})
}

func (e *snapshotEmitter) EmitSnapshotFailed(projectID string, err error) {
	e.bus.Emit(Event{Type: EventSnapshotFailed, Payload: SnapshotFailedEvent{
		ProjectID: projectID, ErrorKind: remote.KindOf(err), Error: errString(err),
	}})
}

// connectivityEmitter adapts the engine's EventBus to the connectivity.EventEmitter interface.
type connectivityEmitter struct {
	bus *EventBus
}

func (e *connectivityEmitter) EmitConnectivityChanged(online bool, err error) {
	e.bus.Emit(Event{Type: EventConnectivityChanged, Payload: ConnectivityEvent{Online: online, Error: errString(err)}})
}

// siteEmitter adapts the engine's EventBus to the site.EventEmitter interface.
type siteEmitter struct {
	bus *EventBus
}

func (e *siteEmitter) EmitRequisitionStatusChanged(requisitionID, oldStatus, newStatus string) {
	e.bus.Emit(Event{Type: EventRequisitionStatusChanged, Payload: RequisitionStatusChangedEvent{
		RequisitionID: requisitionID, OldStatus: oldStatus, NewStatus: newStatus,
	}})
}

func (e *siteEmitter) EmitRefreshNeeded(reason string) {
	e.bus.Emit(Event{Type: EventRefreshRequested, Payload: RefreshRequestedEvent{Reason: reason}})
}
