package protocol

import "time"

var defaultTTLs = map[string]time.Duration{
	TypeDeviceHeartbeat:     2 * time.Minute,
	TypeDeviceRegister:      5 * time.Minute,
	TypeQueueHalted:         30 * time.Minute,
	TypeSnapshotInvalidated: 10 * time.Minute,
}

// FallbackTTL is used when no specific TTL is configured.
const FallbackTTL = 10 * time.Minute

// DefaultTTLFor returns the default TTL for a message type.
func DefaultTTLFor(msgType string) time.Duration {
	if ttl, ok := defaultTTLs[msgType]; ok {
		return ttl
	}
	return FallbackTTL
}

// IsExpired returns true if the header has passed its expiry time.
func IsExpired(hdr *RawHeader) bool {
	if hdr.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(hdr.ExpiresAt)
}
