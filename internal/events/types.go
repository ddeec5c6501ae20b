package events

import "time"

// Event enumerates the topics published while a signal moves through the pipeline.
type Event string

const (
	EventSignalReceived Event = "signal.received"
	EventSignalParsed   Event = "signal.parsed"
	EventSignalRejected Event = "signal.rejected" // no signal or failed validation
	EventSignalQueued   Event = "signal.queued"
	EventTradeExecuted  Event = "trade.executed"
	EventTradeFailed    Event = "trade.failed"
	EventAlert          Event = "alert"
)

// SignalEvent is the payload for every signal.* and trade.* topic.
type SignalEvent struct {
	TaskID   string    `json:"task_id"`
	Source   string    `json:"source,omitempty"`
	Stage    string    `json:"stage"`
	Symbol   string    `json:"symbol,omitempty"`
	Action   string    `json:"action,omitempty"`
	Volume   float64   `json:"volume,omitempty"`
	SignalID string    `json:"signal_id,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// Alert is the payload for EventAlert.
type Alert struct {
	Level   string    `json:"level"` // "warning" or "critical"
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}
