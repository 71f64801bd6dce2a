package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/keygate/internal/model"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Store persists API keys and instance settings in a SQL database. SQLite is
// the default; PostgreSQL and MySQL are supported for shared deployments.
type Store struct {
	db      *sqlx.DB
	dialect string
}

// NewStore creates a SQLite-backed store in dataDir. Pass empty string for
// in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "keygate.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return OpenStore(DriverSQLite, dsn)
}

// OpenStore connects to the given driver and DSN and applies migrations.
func OpenStore(driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite, "":
		driver, sqlDriver = DriverSQLite, "sqlite"
	case DriverPostgres:
		sqlDriver = "pgx"
	case DriverMySQL:
		sqlDriver = "mysql"
		normalized, err := normalizeMySQLDSN(dsn)
		if err != nil {
			return nil, err
		}
		dsn = normalized
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sqlx.Connect(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	}

	s := &Store{db: db, dialect: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate key store: %w", err)
	}
	return s, nil
}

// normalizeMySQLDSN forces parseTime so DATETIME columns scan into time.Time.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns the store driver name.
func (s *Store) Dialect() string {
	return s.dialect
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// keyRow maps 1:1 to the api_keys table. Actions and indexes are stored as
// JSON arrays.
type keyRow struct {
	ID          string         `db:"id"`
	Description sql.NullString `db:"description"`
	ActionsJSON string         `db:"actions_json"`
	IndexesJSON string         `db:"indexes_json"`
	ExpiresAt   sql.NullTime   `db:"expires_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func keyRowFromModel(k *model.Key) (keyRow, error) {
	actions, err := json.Marshal(k.Actions)
	if err != nil {
		return keyRow{}, fmt.Errorf("marshal actions: %w", err)
	}
	indexes, err := json.Marshal(k.Indexes)
	if err != nil {
		return keyRow{}, fmt.Errorf("marshal indexes: %w", err)
	}
	row := keyRow{
		ID:          k.ID,
		ActionsJSON: string(actions),
		IndexesJSON: string(indexes),
		CreatedAt:   k.CreatedAt.UTC(),
		UpdatedAt:   k.UpdatedAt.UTC(),
	}
	if k.Description != nil {
		row.Description = sql.NullString{String: *k.Description, Valid: true}
	}
	if k.ExpiresAt != nil {
		row.ExpiresAt = sql.NullTime{Time: k.ExpiresAt.UTC(), Valid: true}
	}
	return row, nil
}

func (r keyRow) toModel() (model.Key, error) {
	k := model.Key{
		ID:        r.ID,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.ActionsJSON), &k.Actions); err != nil {
		return model.Key{}, fmt.Errorf("unmarshal actions for key %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.IndexesJSON), &k.Indexes); err != nil {
		return model.Key{}, fmt.Errorf("unmarshal indexes for key %s: %w", r.ID, err)
	}
	if k.Actions == nil {
		k.Actions = []model.Action{}
	}
	if k.Indexes == nil {
		k.Indexes = []string{}
	}
	if r.Description.Valid {
		d := r.Description.String
		k.Description = &d
	}
	if r.ExpiresAt.Valid {
		e := r.ExpiresAt.Time.UTC()
		k.ExpiresAt = &e
	}
	return k, nil
}

const keyColumns = "id, description, actions_json, indexes_json, expires_at, created_at, updated_at"

// CreateKey inserts a fully built key. Returns ErrConflict if a key with the
// same id already exists.
func (s *Store) CreateKey(ctx context.Context, key *model.Key) error {
	row, err := keyRowFromModel(key)
	if err != nil {
		return err
	}

	const q = `INSERT INTO api_keys
		(id, description, actions_json, indexes_json, expires_at, created_at, updated_at)
		VALUES
		(:id, :description, :actions_json, :indexes_json, :expires_at, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetKey returns a key by id.
func (s *Store) GetKey(ctx context.Context, id string) (*model.Key, error) {
	var row keyRow
	q := s.db.Rebind("SELECT " + keyColumns + " FROM api_keys WHERE id = ?")
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	k, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListKeys returns keys ordered by creation time, newest first. A limit of
// zero or less returns every key.
func (s *Store) ListKeys(ctx context.Context, limit, offset int) ([]model.Key, error) {
	q := "SELECT " + keyColumns + " FROM api_keys ORDER BY created_at DESC, id"
	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	var rows []keyRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	keys := make([]model.Key, 0, len(rows))
	for _, r := range rows {
		k, err := r.toModel()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// CountKeys returns the total number of stored keys.
func (s *Store) CountKeys(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM api_keys"); err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return n, nil
}

// UpdateKey overwrites the mutable fields of an existing key. The id and
// created_at columns are never modified.
func (s *Store) UpdateKey(ctx context.Context, key *model.Key) error {
	row, err := keyRowFromModel(key)
	if err != nil {
		return err
	}

	const q = `UPDATE api_keys SET
		description = :description, actions_json = :actions_json, indexes_json = :indexes_json,
		expires_at = :expires_at, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteKey removes a key by id.
func (s *Store) DeleteKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM api_keys WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredKeys removes every key whose expiration is at or before now
// and returns how many were deleted.
func (s *Store) DeleteExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM api_keys WHERE expires_at IS NOT NULL AND expires_at <= ?"), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired api keys: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired api keys rows affected: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value stored under name, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, name string) (string, error) {
	var value string
	q := s.db.Rebind("SELECT value FROM settings WHERE name = ?")
	if err := s.db.GetContext(ctx, &value, q, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores value under name, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, name, value string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM settings WHERE name = ?"), name); err != nil {
		return fmt.Errorf("clear setting: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO settings (name, value) VALUES (?, ?)"), name, value); err != nil {
		return fmt.Errorf("insert setting: %w", err)
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// isUniqueViolation recognizes primary key / unique constraint failures
// across the supported drivers.
func isUniqueViolation(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry")
}
