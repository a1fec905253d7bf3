package serverdb

// ServerSchemaVersion is the current server database schema version
const ServerSchemaVersion = 2

const serverSchema = `
-- Household members
CREATE TABLE IF NOT EXISTS members (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- API tokens, one or more per member
CREATE TABLE IF NOT EXISTS api_keys (
    id TEXT PRIMARY KEY,
    member_id TEXT NOT NULL,
    key_hash TEXT UNIQUE NOT NULL,
    key_prefix TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    last_used_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (member_id) REFERENCES members(id) ON DELETE CASCADE
);

-- Collection rows; data holds the record fields as JSON
CREATE TABLE IF NOT EXISTS records (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    client_ref TEXT NOT NULL DEFAULT '',
    data JSON NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);

-- Append-only change log feeding subscriptions
CREATE TABLE IF NOT EXISTS changes (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    collection TEXT NOT NULL,
    op TEXT NOT NULL CHECK(op IN ('insert', 'update', 'delete')),
    record_id TEXT NOT NULL,
    record JSON NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Push notification endpoints
CREATE TABLE IF NOT EXISTS push_endpoints (
    id TEXT PRIMARY KEY,
    member_id TEXT NOT NULL,
    url TEXT NOT NULL,
    secret TEXT NOT NULL DEFAULT '',
    failures INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (member_id, url)
);

-- Schema info table
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_api_keys_member ON api_keys(member_id);
CREATE INDEX IF NOT EXISTS idx_records_created ON records(collection, created_at);
CREATE INDEX IF NOT EXISTS idx_records_client_ref ON records(collection, client_ref) WHERE client_ref != '';
CREATE INDEX IF NOT EXISTS idx_changes_collection ON changes(collection, seq);
CREATE INDEX IF NOT EXISTS idx_push_endpoints_member ON push_endpoints(member_id);
`

// Migration defines a server database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all server database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Track delivery failures on push endpoints",
		SQL: `ALTER TABLE push_endpoints ADD COLUMN failures INTEGER NOT NULL DEFAULT 0;
		ALTER TABLE push_endpoints ADD COLUMN last_error TEXT NOT NULL DEFAULT '';`,
	},
}
