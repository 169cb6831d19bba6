// Package pgstore is a PostgreSQL-backed storage.Store. Like sqlitestore
// it never enforces retention at the database layer;
// it is intended for deployments that already run Postgres for other
// state and want one fewer moving part, accepting governance-mode
// guarantees only.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
	"github.com/ledgerseal/auditcore/pkg/storage"
)

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres using dsn and runs the objects table migration.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an already-open *sql.DB, running the migration.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS objects (
		key TEXT PRIMARY KEY,
		data BYTEA NOT NULL,
		content_hash TEXT NOT NULL,
		metadata JSONB,
		stored_at TIMESTAMPTZ NOT NULL,
		retention_days INTEGER NOT NULL DEFAULT 0,
		retention_mode TEXT NOT NULL DEFAULT '',
		legal_hold BOOLEAN NOT NULL DEFAULT false
	);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

func (s *Store) Store(ctx context.Context, key string, data []byte, opts storage.StoreOptions) (*storage.StoredObject, error) {
	hash := storage.ContentHash(data)
	now := time.Now().UTC()

	metaJSON, err := json.Marshal(opts.Metadata)
	if err != nil {
		return nil, fmt.Errorf("pgstore: marshal metadata: %w", err)
	}

	var retentionDays int
	var retentionMode string
	if opts.Retention != nil {
		retentionDays = opts.Retention.Days
		retentionMode = string(opts.Retention.Mode)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO objects (key, data, content_hash, metadata, stored_at, retention_days, retention_mode)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key, data, fmt.Sprintf("%x", hash), metaJSON, now, retentionDays, retentionMode,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, auditerr.New("pgstore.Store", auditerr.KindAlreadyExists, err)
		}
		return nil, auditerr.New("pgstore.Store", auditerr.KindStorageFailure, err)
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
	var metaJSON []byte
	row := s.db.QueryRowContext(ctx, `SELECT data, metadata FROM objects WHERE key = $1`, key)
	if err := row.Scan(&data, &metaJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, auditerr.New("pgstore.Retrieve", auditerr.KindNotFound, err)
		}
		return nil, auditerr.New("pgstore.Retrieve", auditerr.KindStorageFailure, err)
	}

	var meta map[string]string
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &meta)
	}
	return &storage.RetrievedObject{Data: data, Metadata: meta}, nil
}

func (s *Store) VerifyIntegrity(ctx context.Context, key string) (bool, error) {
	var data []byte
	var storedHashHex string
	row := s.db.QueryRowContext(ctx, `SELECT data, content_hash FROM objects WHERE key = $1`, key)
	if err := row.Scan(&data, &storedHashHex); err != nil {
		if err == sql.ErrNoRows {
			return false, auditerr.New("pgstore.VerifyIntegrity", auditerr.KindNotFound, err)
		}
		return false, auditerr.New("pgstore.VerifyIntegrity", auditerr.KindStorageFailure, err)
	}

	recomputed := storage.ContentHash(data)
	var stored [32]byte
	if _, err := fmt.Sscanf(storedHashHex, "%x", &stored); err != nil {
		return false, auditerr.New("pgstore.VerifyIntegrity", auditerr.KindIntegrityFailed, err)
	}
	return storage.ConstantTimeEqual(recomputed, stored), nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects WHERE key = $1`, key)
	if err := row.Scan(&n); err != nil {
		return false, auditerr.New("pgstore.Exists", auditerr.KindStorageFailure, err)
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	query := `SELECT key FROM objects WHERE key LIKE $1 ORDER BY key`
	args := []any{escapeLike(prefix) + "%"}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, auditerr.New("pgstore.List", auditerr.KindStorageFailure, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, auditerr.New("pgstore.List", auditerr.KindStorageFailure, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) ApplyLegalHold(ctx context.Context, key string) error {
	return s.setLegalHold(ctx, key, true)
}

func (s *Store) RemoveLegalHold(ctx context.Context, key string) error {
	return s.setLegalHold(ctx, key, false)
}

func (s *Store) setLegalHold(ctx context.Context, key string, hold bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE objects SET legal_hold = $1 WHERE key = $2`, hold, key)
	if err != nil {
		return auditerr.New("pgstore.legalHold", auditerr.KindStorageFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return auditerr.New("pgstore.legalHold", auditerr.KindStorageFailure, err)
	}
	if n == 0 {
		return auditerr.New("pgstore.legalHold", auditerr.KindNotFound, errKeyNotFound)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return auditerr.New("pgstore.HealthCheck", auditerr.KindConnectionFailed, err)
	}
	return nil
}

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		ProviderName:      "postgres",
		SupportsWORM:      false,
		SupportsLegalHold: true,
		SupportsRetention: true,
		EnforcesRetention: false,
		MaxObjectSize:     0,
	}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}

func escapeLike(s string) string {
	r := strings.NewReplacer("%", "\\%", "_", "\\_")
	return r.Replace(s)
}
