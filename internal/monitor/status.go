package monitor

import "signal-bridge/internal/queue"

// Status is the runtime summary served on /api/status and the bot's /status.
type Status struct {
	Mode           string              `json:"mode"`
	Degraded       bool                `json:"degraded"`
	Version        string              `json:"version"`
	Uptime         string              `json:"uptime"`
	QueuedTasks    int                 `json:"queued_tasks"`
	ImageIntake    bool                `json:"image_intake"`
	SignalsDir     string              `json:"signals_dir,omitempty"`
	PendingSignals int                 `json:"pending_signals"`
	Store          *queue.StoreMetrics `json:"store,omitempty"`
}
