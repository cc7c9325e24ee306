package protocol

// Message types.
const (
	// Device -> fleet (published on the status topic)
	TypeDeviceRegister  = "device.register"
	TypeDeviceHeartbeat = "device.heartbeat"
	TypeQueueHalted     = "queue.halted"

	// Backend -> devices (published on the notice topic)
	TypeSnapshotInvalidated = "snapshot.invalidated"
)

// Roles for Address.Role.
const (
	RoleDevice  = "device"
	RoleBackend = "backend"
)

// Protocol version.
const Version = 1
