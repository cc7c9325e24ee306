package queue

import "github.com/shopspring/decimal"

// EventEmitter is the interface the queue uses to emit events.
type EventEmitter interface {
	EmitMutationEnqueued(id int64, clientRef, projectID, itemID, kind string, delta decimal.Decimal)
	EmitMutationDismissed(id int64, clientRef string)
	EmitMutationRetried(id int64)
	EmitDrainStarted(pending int)
	EmitDrainCompleted(delivered int)
	EmitDrainHalted(id int64, delivered int, errKind string, err error)
}
