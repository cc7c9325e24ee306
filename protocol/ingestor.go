package protocol

import (
	"encoding/json"

	"go.uber.org/zap"
)

// FilterFunc returns true if the message should be processed.
type FilterFunc func(hdr *RawHeader) bool

// MessageHandler defines callbacks for all protocol message types.
// Embed NoOpHandler and override only the methods you need.
type MessageHandler interface {
	HandleDeviceRegister(env *Envelope, p *DeviceRegister)
	HandleDeviceHeartbeat(env *Envelope, p *DeviceHeartbeat)
	HandleQueueHalted(env *Envelope, p *QueueHalted)
	HandleSnapshotInvalidated(env *Envelope, p *SnapshotInvalidated)
}

// Ingestor performs two-phase decode and dispatches to a MessageHandler.
type Ingestor struct {
	handler MessageHandler
	filter  FilterFunc
	log     *zap.Logger
}

// NewIngestor creates an ingestor with the given handler and filter.
func NewIngestor(handler MessageHandler, filter FilterFunc, log *zap.Logger) *Ingestor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{handler: handler, filter: filter, log: log}
}

// HandleRaw is the entry point for raw message bytes from the messaging layer.
func (ing *Ingestor) HandleRaw(data []byte) {
	// Phase 1: routing header only
	var hdr RawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		ing.log.Warn("header decode failed", zap.Error(err))
		return
	}
	if hdr.Version != Version {
		ing.log.Debug("dropping message with unknown version", zap.Int("v", hdr.Version), zap.String("id", hdr.ID))
		return
	}
	if IsExpired(&hdr) {
		ing.log.Debug("dropping expired message", zap.String("id", hdr.ID), zap.String("type", hdr.Type))
		return
	}
	if ing.filter != nil && !ing.filter(&hdr) {
		return
	}

	// Phase 2: full envelope
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ing.log.Warn("envelope decode failed", zap.Error(err))
		return
	}

	switch env.Type {
	case TypeDeviceRegister:
		decodeAndCall(ing, ing.handler.HandleDeviceRegister, &env)
	case TypeDeviceHeartbeat:
		decodeAndCall(ing, ing.handler.HandleDeviceHeartbeat, &env)
	case TypeQueueHalted:
		decodeAndCall(ing, ing.handler.HandleQueueHalted, &env)
	case TypeSnapshotInvalidated:
		decodeAndCall(ing, ing.handler.HandleSnapshotInvalidated, &env)
	default:
		ing.log.Debug("unknown message type", zap.String("type", env.Type))
	}
}

func decodeAndCall[T any](ing *Ingestor, fn func(*Envelope, *T), env *Envelope) {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ing.log.Warn("payload decode failed", zap.String("type", env.Type), zap.Error(err))
		return
	}
	fn(env, &p)
}
