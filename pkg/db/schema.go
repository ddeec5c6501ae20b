package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS signal_audit (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id TEXT NOT NULL,
    source TEXT NOT NULL,
    stage TEXT NOT NULL,
    signal_id TEXT,
    symbol TEXT,
    action TEXT,
    volume REAL DEFAULT 0,
    success INTEGER NOT NULL DEFAULT 0,
    message TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_signal_audit_signal ON signal_audit(signal_id);
CREATE INDEX IF NOT EXISTS idx_signal_audit_created ON signal_audit(created_at);
`

// addedAuditColumns were added to signal_audit after the first release.
var addedAuditColumns = []struct{ name, definition string }{
	{"mode", "TEXT DEFAULT ''"},
	{"duration_ms", "INTEGER DEFAULT 0"},
}

// ApplyMigrations creates the audit table and adds any missing columns.
// Safe to run on every start.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, col := range addedAuditColumns {
		if err := ensureColumn(d.DB, "signal_audit", col.name, col.definition); err != nil {
			return err
		}
	}
	return nil
}

func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil || exists {
		return err
	}
	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect %s columns: %w", table, err)
	}
	return n > 0, nil
}
