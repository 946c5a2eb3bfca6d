package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventTransactionRecorded = "transaction.recorded"
	EventLedgerCleared       = "ledger.cleared"
)

// LedgerEvent is a lightweight notification about a ledger change.
// Recorded events carry only the id; consumers read the full row from the store.
type LedgerEvent struct {
	Type          string    `json:"type"`
	TransactionID string    `json:"id,omitempty"`
	OwnerID       string    `json:"owner_id"`
	Count         int       `json:"count,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionRecordedEvent(ownerID, id string) *LedgerEvent {
	return &LedgerEvent{
		Type:          EventTransactionRecorded,
		TransactionID: id,
		OwnerID:       ownerID,
		Timestamp:     time.Now().UTC(),
	}
}

func NewLedgerClearedEvent(ownerID string, count int) *LedgerEvent {
	return &LedgerEvent{
		Type:      EventLedgerCleared,
		OwnerID:   ownerID,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes and sanity-checks an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventTransactionRecorded:
		if msg.TransactionID == "" {
			return nil, fmt.Errorf("%s event without transaction id", msg.Type)
		}
	case EventLedgerCleared:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.OwnerID == "" {
		return nil, fmt.Errorf("%s event without owner id", msg.Type)
	}
	return &msg, nil
}
