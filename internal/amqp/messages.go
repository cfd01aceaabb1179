package amqp

import (
	"encoding/json"
	"time"
)

// SyncEvent announces that a device finished a sync run. Other devices
// treat it as a hint to pull early; it carries no ledger data.
type SyncEvent struct {
	Device    string    `json:"device"`
	Direction string    `json:"direction"`
	Tables    []string  `json:"tables,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSyncEvent creates a new event stamped with the current time
func NewSyncEvent(device, direction string, tables []string) *SyncEvent {
	return &SyncEvent{
		Device:    device,
		Direction: direction,
		Tables:    tables,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *SyncEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncEventFromJSON creates an event from JSON bytes
func SyncEventFromJSON(data []byte) (*SyncEvent, error) {
	var msg SyncEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
