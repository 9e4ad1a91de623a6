// Package sqlite is a tokenstore driver backed by a single-table SQLite
// database. Useful when the client already keeps other state in SQLite, or
// when several processes on one host share a credential set.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/iotrac/pkg/cryptox"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
	_ "modernc.org/sqlite"
)

type Store struct {
	db     *sql.DB
	sealer cryptox.Sealer
}

var _ tokenstore.Store = (*Store)(nil)

// NewStore opens dsn and applies pending migrations. A nil sealer stores
// values in the clear.
func NewStore(dsn string, sealer cryptox.Sealer) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	if sealer == nil {
		sealer = cryptox.NopSealer{}
	}

	s := &Store{db: db, sealer: sealer}
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate token store: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Save replaces all three keys in one transaction. Absent fields are deleted.
func (s *Store) Save(ctx context.Context, c tokenstore.Credentials) error {
	kv, err := tokenstore.Encode(c)
	if err != nil {
		return err
	}

	sealed := make(map[string][]byte, len(kv))
	for k, v := range kv {
		b, err := s.sealer.Seal([]byte(v))
		if err != nil {
			return fmt.Errorf("failed to seal %s: %w", k, err)
		}
		sealed[k] = b
	}

	now := time.Now().UTC()
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, key := range tokenstore.Keys {
			value, ok := sealed[key]
			if !ok {
				if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
					return fmt.Errorf("failed to delete %s: %w", key, err)
				}
				continue
			}

			_, err := tx.ExecContext(ctx, `
				INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				key, value, now,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *Store) Load(ctx context.Context) (tokenstore.Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		return tokenstore.Credentials{}, fmt.Errorf("%w: %v", tokenstore.ErrUnavailable, err)
	}
	defer rows.Close()

	kv := make(map[string]string, len(tokenstore.Keys))
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return tokenstore.Credentials{}, fmt.Errorf("%w: %v", tokenstore.ErrUnavailable, err)
		}

		plain, err := s.sealer.Open(value)
		if err != nil {
			return tokenstore.Credentials{}, fmt.Errorf("%w: %s: %v", tokenstore.ErrCorrupt, key, err)
		}
		kv[key] = string(plain)
	}
	if err := rows.Err(); err != nil {
		return tokenstore.Credentials{}, fmt.Errorf("%w: %v", tokenstore.ErrUnavailable, err)
	}

	return tokenstore.Decode(kv)
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("failed to clear token store: %w", err)
	}
	return nil
}
