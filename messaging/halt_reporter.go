package messaging

import (
	"go.uber.org/zap"

	"sitemanager/engine"
	"sitemanager/protocol"
)

// HaltReporter publishes queue.halted whenever a drain stops on a failing
// mutation.
type HaltReporter struct {
	pub      Publisher
	bus      *engine.EventBus
	deviceID string
	topic    string
	log      *zap.Logger
	sub      engine.SubscriberID
}

// NewHaltReporter creates a reporter for the given device identity.
func NewHaltReporter(pub Publisher, bus *engine.EventBus, deviceID, topic string, log *zap.Logger) *HaltReporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &HaltReporter{pub: pub, bus: bus, deviceID: deviceID, topic: topic, log: log}
}

// Start subscribes to drain halts.
func (r *HaltReporter) Start() {
	r.sub = r.bus.SubscribeTypes(r.handle, engine.EventDrainHalted)
}

// Stop unsubscribes.
func (r *HaltReporter) Stop() {
	r.bus.Unsubscribe(r.sub)
}

func (r *HaltReporter) handle(evt engine.Event) {
	h := evt.Payload.(engine.DrainHaltedEvent)
	env, err := protocol.NewEnvelope(protocol.TypeQueueHalted,
		protocol.Address{Role: protocol.RoleDevice, Node: r.deviceID},
		protocol.Address{Role: protocol.RoleBackend},
		&protocol.QueueHalted{
			DeviceID:   r.deviceID,
			MutationID: h.MutationID,
			ErrorKind:  h.ErrorKind,
			Error:      h.Error,
		})
	if err != nil {
		r.log.Error("build queue.halted", zap.Error(err))
		return
	}
	if err := r.pub.PublishEnvelope(r.topic, env); err != nil {
		r.log.Debug("send queue.halted", zap.Error(err))
	}
}
