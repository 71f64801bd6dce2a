package config

import "fmt"

// migrations holds the schema for each dialect. Statements are idempotent and
// applied in order on every open.
var migrations = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			description TEXT,
			actions_json TEXT NOT NULL DEFAULT '[]',
			indexes_json TEXT NOT NULL DEFAULT '[]',
			expires_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_expires_at ON api_keys(expires_at)`,
		`CREATE TABLE IF NOT EXISTS settings (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
	},

	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(64) PRIMARY KEY,
			description TEXT,
			actions_json TEXT NOT NULL DEFAULT '[]',
			indexes_json TEXT NOT NULL DEFAULT '[]',
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_expires_at ON api_keys(expires_at)`,
		`CREATE TABLE IF NOT EXISTS settings (
			name VARCHAR(255) PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
	},

	DriverMySQL: {
		`CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			description TEXT NULL,
			actions_json TEXT NOT NULL,
			indexes_json TEXT NOT NULL,
			expires_at DATETIME(6) NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			INDEX idx_api_keys_expires_at (expires_at)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			name VARCHAR(255) NOT NULL PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	},
}

func (s *Store) migrate() error {
	stmts, ok := migrations[s.dialect]
	if !ok {
		return fmt.Errorf("no migrations for dialect %q", s.dialect)
	}

	for _, m := range stmts {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
