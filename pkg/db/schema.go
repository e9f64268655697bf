package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS algo_orders (
    order_id INTEGER PRIMARY KEY,
    symbol TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'MARKET',
    algo_type TEXT NOT NULL DEFAULT 'STOP',
    side TEXT NOT NULL,
    quantity REAL NOT NULL,
    reduce_only INTEGER NOT NULL DEFAULT 0,
    is_triggered INTEGER NOT NULL DEFAULT 0,
    trigger_price REAL DEFAULT 0,
    trigger_trade_price REAL DEFAULT 0,
    trigger_status TEXT DEFAULT '',
    trigger_time REAL DEFAULT 0,
    status TEXT NOT NULL,
    order_tag TEXT DEFAULT '',
    trade_id INTEGER DEFAULT 0,
    create_time REAL DEFAULT 0,
    updated_time REAL DEFAULT 0,
    total_executed_quantity REAL DEFAULT 0,
    average_executed_price REAL DEFAULT 0,
    realized_pnl REAL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    entry_order_id INTEGER NOT NULL,
    stop_order_id INTEGER,
    signal_id TEXT NOT NULL,
    group_id TEXT DEFAULT '',
    force_close INTEGER NOT NULL DEFAULT 0,
    note TEXT DEFAULT '',
    created_at DATETIME NOT NULL,
    UNIQUE(entry_order_id, signal_id),
    CHECK(entry_order_id != stop_order_id),
    FOREIGN KEY(entry_order_id) REFERENCES algo_orders(order_id)
);

CREATE TABLE IF NOT EXISTS order_signal_history (
    order_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    signal_id TEXT NOT NULL,
    PRIMARY KEY(order_id, position),
    FOREIGN KEY(order_id) REFERENCES orders(id)
);

CREATE TABLE IF NOT EXISTS order_groups (
    id TEXT PRIMARY KEY,
    timeframe_group_id TEXT NOT NULL,
    side TEXT NOT NULL,
    stop_order_id INTEGER,
    params TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
    id TEXT PRIMARY KEY,
    timeframe_group_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    kline_low REAL NOT NULL,
    kline_high REAL NOT NULL,
    rsi REAL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS timeframe_groups (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    timeframe_minutes INTEGER NOT NULL,
    params TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS klines (
    symbol TEXT NOT NULL,
    timeframe_minutes INTEGER NOT NULL,
    start_time INTEGER NOT NULL,
    open REAL NOT NULL,
    high REAL NOT NULL,
    low REAL NOT NULL,
    close REAL NOT NULL,
    volume REAL NOT NULL,
    PRIMARY KEY(symbol, timeframe_minutes, start_time)
);

CREATE TABLE IF NOT EXISTS gateway_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    url TEXT DEFAULT '',
    params TEXT DEFAULT '',
    detail TEXT DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_group ON orders(group_id);
CREATE INDEX IF NOT EXISTS idx_orders_stop ON orders(stop_order_id);
CREATE INDEX IF NOT EXISTS idx_groups_tf_side ON order_groups(timeframe_group_id, side);
CREATE INDEX IF NOT EXISTS idx_gateway_errors_created ON gateway_errors(created_at);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Lightweight, idempotent migrations for older DB files.
	if err := ensureColumn(d.DB, "algo_orders", "trigger_status", "TEXT DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "algo_orders", "realized_pnl", "REAL DEFAULT 0"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "orders", "note", "TEXT DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "timeframe_groups", "is_active", "INTEGER NOT NULL DEFAULT 1"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
