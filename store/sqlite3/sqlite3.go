// Package sqlite3 implements an object store on a SQLite3 database file.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/blockvault/bv"
	"github.com/blockvault/bv/store"
)

var _ store.Store = &Store{}

// Store is a SQLite3-based object store.
// Suited to single-process local vaults and tests.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
const Schema = `
CREATE TABLE IF NOT EXISTS objects (
  key TEXT PRIMARY KEY NOT NULL,
  data BLOB NOT NULL,
  metadata TEXT
);
`

// New produces a new Store using db for storage.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, err
}

// Has tells whether an object exists at key.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	const q = `SELECT 1 FROM objects WHERE key = $1`

	var one int
	err := s.db.QueryRowContext(ctx, q, key).Scan(&one)
	if stderrs.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Stat returns the metadata of the object at key.
func (s *Store) Stat(ctx context.Context, key string) (store.Metadata, error) {
	const q = `SELECT metadata FROM objects WHERE key = $1`

	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, q, key).Scan(&raw)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, bv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeMetadata(raw)
}

// Get returns the content and metadata of the object at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, store.Metadata, error) {
	const q = `SELECT data, metadata FROM objects WHERE key = $1`

	var (
		data []byte
		raw  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, q, key).Scan(&data, &raw)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, nil, bv.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	md, err := decodeMetadata(raw)
	return data, md, err
}

// Put stores data and metadata at key.
func (s *Store) Put(ctx context.Context, key string, data []byte, md store.Metadata) error {
	const q = `INSERT INTO objects (key, data, metadata) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	raw, err := encodeMetadata(md)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, q, key, data, raw)
	return err
}

// Delete removes the object at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM objects WHERE key = $1`

	res, err := s.db.ExecContext(ctx, q, key)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return bv.ErrNotFound
	}
	return nil
}

// List calls f for every key in the store, in lexicographic order.
func (s *Store) List(ctx context.Context, f func(key string) error) error {
	const q = `SELECT key FROM objects ORDER BY key`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		if err := f(key); err != nil {
			return err
		}
	}
	return rows.Err()
}

func encodeMetadata(md store.Metadata) (interface{}, error) {
	if md == nil {
		return nil, nil
	}
	raw, err := json.Marshal(md)
	return string(raw), errors.Wrap(err, "encoding metadata")
}

func decodeMetadata(raw sql.NullString) (store.Metadata, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var md store.Metadata
	err := json.Unmarshal([]byte(raw.String), &md)
	return md, errors.Wrap(err, "decoding metadata")
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (store.Store, error) {
		path, ok := conf["path"].(string)
		if !ok {
			return nil, errors.New(`missing "path" parameter`)
		}
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, errors.Wrap(err, "opening sqlite3 database")
		}
		return New(ctx, db)
	})
}
