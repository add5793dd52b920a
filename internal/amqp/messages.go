package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventKind names what happened to a vehicle's ledger or the expense set.
type EventKind string

const (
	EventCommitted EventKind = "committed"
	EventDeleted   EventKind = "deleted"
)

// LedgerEvent is a lightweight notification: consumers re-read whatever they
// need from the store rather than trusting a payload snapshot.
type LedgerEvent struct {
	Kind      EventKind `json:"kind"`
	ExpenseID string    `json:"expense_id"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	Year      int       `json:"year"`
	Timestamp time.Time `json:"timestamp"`
}

var errUnknownKind = errors.New("unknown event kind")

// NewLedgerEvent stamps an event with the current time.
func NewLedgerEvent(kind EventKind, expenseID, vehicleID string, year int) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		ExpenseID: expenseID,
		VehicleID: vehicleID,
		Year:      year,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes and validates a message body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case EventCommitted, EventDeleted:
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownKind, msg.Kind)
	}
	if msg.ExpenseID == "" {
		return nil, errors.New("expense_id is required")
	}
	return &msg, nil
}
