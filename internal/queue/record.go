package queue

import (
	"time"

	"signal-bridge/internal/signal"
)

// Status is the lifecycle state of a queued record. This process only ever
// writes StatusPending; the external agent owns every other transition.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusExecuted   Status = "executed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed
}

// SignalRecord is the JSON envelope written to <id>.json.
type SignalRecord struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	Status     Status             `json:"status"`
	Volume     float64            `json:"volume"`
	Signal     signal.TradeSignal `json:"signal"`
	ExecutedAt *time.Time         `json:"executedAt,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// NewRecord builds a pending record stamped with now (UTC, millisecond precision).
func NewRecord(id string, sig signal.TradeSignal, volume float64, now time.Time) SignalRecord {
	return SignalRecord{
		ID:        id,
		Timestamp: now.UTC().Truncate(time.Millisecond),
		Status:    StatusPending,
		Volume:    volume,
		Signal:    sig,
	}
}
