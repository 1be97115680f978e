// Package diag is the diagnostics sink: structured records of provider
// faults, validation rejections and game outcomes, kept out of the hot
// path behind a small interface so the core never depends on a particular
// backend.
package diag

import "time"

// Record kinds.
const (
	KindProviderFault    = "provider_fault"
	KindValidationReject = "validation_reject"
	KindStaleDiscard     = "stale_discard"
	KindInvariant        = "invariant_violation"
	KindGameOver         = "game_over"
)

// Record is one diagnostics row.
type Record struct {
	GameID  string    `json:"game_id"`
	Tick    uint64    `json:"tick"`
	Kind    string    `json:"kind"`
	AgentID int       `json:"agent_id,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Payload []byte    `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Recorder accepts diagnostics records. Implementations must never block
// the game loop on failure; a broken sink logs and drops.
type Recorder interface {
	Record(rec Record)
	Close() error
}

// Nop discards everything. Used in tests and headless runs without a
// database.
type Nop struct{}

func (Nop) Record(Record) {}

func (Nop) Close() error { return nil }
