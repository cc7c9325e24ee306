package protocol

// NoOpHandler implements MessageHandler with no-op methods.
// Embed this and override only the methods you need.
type NoOpHandler struct{}

func (NoOpHandler) HandleDeviceRegister(*Envelope, *DeviceRegister)           {}
func (NoOpHandler) HandleDeviceHeartbeat(*Envelope, *DeviceHeartbeat)         {}
func (NoOpHandler) HandleQueueHalted(*Envelope, *QueueHalted)                 {}
func (NoOpHandler) HandleSnapshotInvalidated(*Envelope, *SnapshotInvalidated) {}

var _ MessageHandler = NoOpHandler{}
