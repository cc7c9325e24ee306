package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Address identifies a message source or destination. An empty Node or
// Project addresses every device.
type Address struct {
	Role    string `json:"role"`
	Node    string `json:"node,omitempty"`
	Project string `json:"project,omitempty"`
}

// Envelope wraps every message exchanged over the device bus.
type Envelope struct {
	Version   int             `json:"v"`
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Src       Address         `json:"src"`
	Dst       Address         `json:"dst"`
	Timestamp time.Time       `json:"ts"`
	ExpiresAt time.Time       `json:"exp"`
	Payload   json.RawMessage `json:"p"`
}

// RawHeader is the minimal decode for routing decisions before full payload decode.
type RawHeader struct {
	Version   int       `json:"v"`
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Dst       Address   `json:"dst"`
	ExpiresAt time.Time `json:"exp"`
}

// NewEnvelope creates an outbound envelope with the default TTL for its type.
func NewEnvelope(msgType string, src, dst Address, payload any) (*Envelope, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Envelope{
		Version:   Version,
		Type:      msgType,
		ID:        uuid.NewString(),
		Src:       src,
		Dst:       dst,
		Timestamp: now,
		ExpiresAt: now.Add(DefaultTTLFor(msgType)),
		Payload:   p,
	}, nil
}

// Encode marshals the envelope to JSON.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodePayload unmarshals the raw payload into the given target.
func (e *Envelope) DecodePayload(target any) error {
	return json.Unmarshal(e.Payload, target)
}
