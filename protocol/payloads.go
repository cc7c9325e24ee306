package protocol

import "time"

// DeviceRegister is sent once when a device connects to the bus.
type DeviceRegister struct {
	DeviceID string `json:"device_id"`
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	Project  string `json:"project,omitempty"`
}

// DeviceHeartbeat reports a device's sync state.
type DeviceHeartbeat struct {
	DeviceID    string    `json:"device_id"`
	Uptime      int64     `json:"uptime_s"`
	Project     string    `json:"project,omitempty"`
	Pending     int       `json:"pending"`
	Online      bool      `json:"online"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
}

// QueueHalted is published when a drain stops on a failing mutation so the
// office can see a device that needs attention.
type QueueHalted struct {
	DeviceID   string `json:"device_id"`
	MutationID int64  `json:"mutation_id"`
	ErrorKind  string `json:"error_kind"`
	Error      string `json:"error"`
}

// SnapshotInvalidated tells devices that server data changed and a fresh
// download is due.
type SnapshotInvalidated struct {
	Project string `json:"project,omitempty"`
	Reason  string `json:"reason"`
}
