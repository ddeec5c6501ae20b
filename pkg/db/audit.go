package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

// AuditEntry is one pipeline run as stored in signal_audit.
type AuditEntry struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"taskId"`
	Source     string    `json:"source"` // text, image
	Stage      string    `json:"stage"`
	Mode       string    `json:"mode,omitempty"`
	SignalID   string    `json:"signalId,omitempty"`
	Symbol     string    `json:"symbol,omitempty"`
	Action     string    `json:"action,omitempty"`
	Volume     float64   `json:"volume,omitempty"`
	Success    bool      `json:"success"`
	Message    string    `json:"message,omitempty"`
	DurationMS int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

const auditColumns = `id, task_id, source, stage, COALESCE(mode, ''), COALESCE(signal_id, ''),
	COALESCE(symbol, ''), COALESCE(action, ''), COALESCE(volume, 0), success,
	COALESCE(message, ''), COALESCE(duration_ms, 0), created_at`

// InsertAudit stores e and returns its row id. A zero CreatedAt is set to now.
func (d *Database) InsertAudit(ctx context.Context, e AuditEntry) (int64, error) {
	if e.TaskID == "" {
		return 0, errors.New("audit entry needs a task id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := d.DB.ExecContext(ctx, `
		INSERT INTO signal_audit (task_id, source, stage, mode, signal_id, symbol, action, volume, success, message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?)
	`, e.TaskID, e.Source, e.Stage, e.Mode, e.SignalID, e.Symbol, e.Action, e.Volume, e.Success, e.Message, e.DurationMS, e.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert audit: %w", err)
	}
	return res.LastInsertId()
}

// ListAuditBySignal returns the rows written for a queued signal id, oldest first.
func (d *Database) ListAuditBySignal(ctx context.Context, signalID string) ([]AuditEntry, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM signal_audit
		WHERE signal_id = ?
		ORDER BY id ASC
	`, signalID)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	entries, err := scanAudit(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

// RecentAudit returns the latest rows, newest first.
func (d *Database) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM signal_audit
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	return scanAudit(rows)
}

func scanAudit(rows *sql.Rows) ([]AuditEntry, error) {
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Source, &e.Stage, &e.Mode, &e.SignalID,
			&e.Symbol, &e.Action, &e.Volume, &e.Success, &e.Message, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
