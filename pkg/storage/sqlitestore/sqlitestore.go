// Package sqlitestore is a single-table SQLite Store, intended for demo
// and development deployments: it tracks retention metadata but does not
// enforce it, and its UNIQUE key constraint is what gives ALREADY_EXISTS
// its atomicity.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
	"github.com/ledgerseal/auditcore/pkg/storage"
)

// Store is a SQLite-backed storage.Store using the pure-Go
// modernc.org/sqlite driver (no cgo).
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite database at path and runs the
// objects table migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an already-open *sql.DB, running the migration.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS objects (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		content_hash TEXT NOT NULL,
		metadata JSON,
		stored_at DATETIME NOT NULL,
		retention_days INTEGER NOT NULL DEFAULT 0,
		retention_mode TEXT NOT NULL DEFAULT '',
		legal_hold INTEGER NOT NULL DEFAULT 0
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return nil
}

func (s *Store) Store(ctx context.Context, key string, data []byte, opts storage.StoreOptions) (*storage.StoredObject, error) {
	hash := storage.ContentHash(data)
	now := time.Now().UTC()

	metaJSON, err := json.Marshal(opts.Metadata)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: marshal metadata: %w", err)
	}

	var retentionDays int
	var retentionMode string
	if opts.Retention != nil {
		retentionDays = opts.Retention.Days
		retentionMode = string(opts.Retention.Mode)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO objects (key, data, content_hash, metadata, stored_at, retention_days, retention_mode) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key, data, fmt.Sprintf("%x", hash), string(metaJSON), now.Format(time.RFC3339Nano), retentionDays, retentionMode,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, auditerr.New("sqlitestore.Store", auditerr.KindAlreadyExists, err)
		}
		return nil, auditerr.New("sqlitestore.Store", auditerr.KindStorageFailure, err)
	}

	return &storage.StoredObject{
		Key:         key,
		ContentHash: hash,
		Size:        int64(len(data)),
		StoredAt:    now,
		Retention:   opts.Retention,
	}, nil
}

func (s *Store) Retrieve(ctx context.Context, key string) (*storage.RetrievedObject, error) {
	var data []byte
	var metaJSON sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT data, metadata FROM objects WHERE key = ?`, key)
	if err := row.Scan(&data, &metaJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, auditerr.New("sqlitestore.Retrieve", auditerr.KindNotFound, err)
		}
		return nil, auditerr.New("sqlitestore.Retrieve", auditerr.KindStorageFailure, err)
	}

	var meta map[string]string
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &meta)
	}
	return &storage.RetrievedObject{Data: data, Metadata: meta}, nil
}

func (s *Store) VerifyIntegrity(ctx context.Context, key string) (bool, error) {
	var data []byte
	var storedHashHex string
	row := s.db.QueryRowContext(ctx, `SELECT data, content_hash FROM objects WHERE key = ?`, key)
	if err := row.Scan(&data, &storedHashHex); err != nil {
		if err == sql.ErrNoRows {
			return false, auditerr.New("sqlitestore.VerifyIntegrity", auditerr.KindNotFound, err)
		}
		return false, auditerr.New("sqlitestore.VerifyIntegrity", auditerr.KindStorageFailure, err)
	}

	recomputed := storage.ContentHash(data)
	var stored [32]byte
	if _, err := fmt.Sscanf(storedHashHex, "%x", &stored); err != nil {
		return false, auditerr.New("sqlitestore.VerifyIntegrity", auditerr.KindIntegrityFailed, err)
	}
	return storage.ConstantTimeEqual(recomputed, stored), nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects WHERE key = ?`, key)
	if err := row.Scan(&n); err != nil {
		return false, auditerr.New("sqlitestore.Exists", auditerr.KindStorageFailure, err)
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	query := `SELECT key FROM objects WHERE key LIKE ? ORDER BY key`
	args := []any{escapeLike(prefix) + "%"}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, auditerr.New("sqlitestore.List", auditerr.KindStorageFailure, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, auditerr.New("sqlitestore.List", auditerr.KindStorageFailure, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) ApplyLegalHold(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE objects SET legal_hold = 1 WHERE key = ?`, key)
	return legalHoldResult(res, err)
}

func (s *Store) RemoveLegalHold(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE objects SET legal_hold = 0 WHERE key = ?`, key)
	return legalHoldResult(res, err)
}

func legalHoldResult(res sql.Result, err error) error {
	if err != nil {
		return auditerr.New("sqlitestore.legalHold", auditerr.KindStorageFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return auditerr.New("sqlitestore.legalHold", auditerr.KindStorageFailure, err)
	}
	if n == 0 {
		return auditerr.New("sqlitestore.legalHold", auditerr.KindNotFound, errKeyNotFound)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return auditerr.New("sqlitestore.HealthCheck", auditerr.KindConnectionFailed, err)
	}
	return nil
}

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		ProviderName:      "sqlite",
		SupportsWORM:      false,
		SupportsLegalHold: true,
		SupportsRetention: true,
		EnforcesRetention: false,
		MaxObjectSize:     0,
	}
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func escapeLike(s string) string {
	r := strings.NewReplacer("%", "\\%", "_", "\\_")
	return r.Replace(s)
}
