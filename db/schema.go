// ABOUTME: Database schema definitions
// ABOUTME: Holds the deals table DDL for the SQLite and PostgreSQL dialects
package db

import (
	"github.com/jmoiron/sqlx"
)

// Phase-keyed sub-records and ledger fields live in JSON text columns.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	client TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL,
	phase TEXT NOT NULL,
	due_date TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	customer_checklist_url TEXT NOT NULL DEFAULT '',
	line_user_id TEXT NOT NULL DEFAULT '',
	line_display_name TEXT NOT NULL DEFAULT '',
	line_connection_method TEXT NOT NULL DEFAULT 'none',
	line_connected_at DATETIME,
	registration_token TEXT,
	ledger TEXT NOT NULL DEFAULT '{}',
	ledger_id TEXT NOT NULL DEFAULT '',
	follow_up TEXT,
	billing TEXT,
	last_reminded_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deals_phase ON deals(phase);
CREATE INDEX IF NOT EXISTS idx_deals_due_date ON deals(due_date);
CREATE INDEX IF NOT EXISTS idx_deals_line_user_id ON deals(line_user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_deals_registration_token ON deals(registration_token);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS deals (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	client TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL,
	phase TEXT NOT NULL,
	due_date TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	customer_checklist_url TEXT NOT NULL DEFAULT '',
	line_user_id TEXT NOT NULL DEFAULT '',
	line_display_name TEXT NOT NULL DEFAULT '',
	line_connection_method TEXT NOT NULL DEFAULT 'none',
	line_connected_at TIMESTAMPTZ,
	registration_token TEXT,
	ledger TEXT NOT NULL DEFAULT '{}',
	ledger_id TEXT NOT NULL DEFAULT '',
	follow_up TEXT,
	billing TEXT,
	last_reminded_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deals_phase ON deals(phase);
CREATE INDEX IF NOT EXISTS idx_deals_due_date ON deals(due_date);
CREATE INDEX IF NOT EXISTS idx_deals_line_user_id ON deals(line_user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_deals_registration_token ON deals(registration_token);
`

// InitSchema creates the tables for the connection's dialect.
func InitSchema(db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == DriverPostgres {
		schema = postgresSchema
	}
	_, err := db.Exec(schema)
	return err
}
