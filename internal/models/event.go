package models

import (
	"encoding/json"
	"time"
)

// Event status values
const (
	StatusApplied    = "applied"
	StatusRolledBack = "rolled_back"
)

// ChainEvent represents a marketplace contract call received through a chainhook
type ChainEvent struct {
	// Identification
	ID   string `json:"id"`   // Assigned at ingestion, unique per retained record
	TxID string `json:"txid"` // Source transaction hash, may repeat across reorgs

	// Call data
	Contract string            `json:"contract"`
	Function string            `json:"function"`
	Args     []json.RawMessage `json:"args"` // Passed through without interpretation

	// Receipt
	Timestamp time.Time `json:"timestamp"` // Ingestion time, not block time

	// Reorg tracking
	Status       string     `json:"status"`
	RolledBackAt *time.Time `json:"rolled_back_at,omitempty"`
}

// IsRolledBack reports whether a later rollback named this event's transaction
func (e *ChainEvent) IsRolledBack() bool {
	return e.Status == StatusRolledBack
}

// EventFilter provides criteria for filtering events
type EventFilter struct {
	Contract string
	Function string
	Status   string
	Limit    int
}

// Matches reports whether the event satisfies every non-empty criterion
func (f EventFilter) Matches(e *ChainEvent) bool {
	if f.Contract != "" && e.Contract != f.Contract {
		return false
	}
	if f.Function != "" && e.Function != f.Function {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}
