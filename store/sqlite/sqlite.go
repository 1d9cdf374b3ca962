// Package sqlite implements an encrypted, persistent store.Backend on top of
// modernc.org/sqlite.
//
// Values are serialized in a compact binary form and sealed with an AEAD cipher before they
// reach the database; the namespace and key are bound as associated data.
// Key names are stored in clear so they can be enumerated.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/sasha-s/go-deadlock"
	_ "modernc.org/sqlite"

	"github.com/davidroman0O/gopref/internal/seal"
	"github.com/davidroman0O/gopref/store"
)

// ErrNoKey is returned when neither a Sealer nor a passphrase is configured.
var ErrNoKey = errors.New("sqlite store needs a sealer or a passphrase")

// Options configures a Store.
type Options struct {
	// Namespace isolates several stores inside one database file.
	Namespace string
	// Passphrase derives the encryption key together with KeyParams.
	Passphrase string
	// KeyParams selects the cipher; see seal.KeyParams.
	KeyParams seal.KeyParams
	// Sealer overrides Passphrase and KeyParams when set.
	Sealer seal.Sealer
}

// Store is a store.Backend persisted in a SQLite database.
type Store struct {
	db        *sql.DB
	mu        deadlock.Mutex // serializes writers so seq stays monotonic
	namespace string
	sealer    seal.Sealer
	listeners store.Listeners
}

var _ store.Backend = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	kind      TEXT NOT NULL,
	value     BLOB NOT NULL,
	seq       INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);
CREATE TABLE IF NOT EXISTS meta (
	name  TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway database.
func Open(path string, opts Options) (*Store, error) {
	if opts.Sealer == nil && opts.Passphrase == "" {
		return nil, ErrNoKey
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db, namespace: opts.Namespace, sealer: opts.Sealer}
	if s.sealer == nil {
		params := opts.KeyParams
		if params == (seal.KeyParams{}) {
			params = seal.DefaultKeyParams()
		}
		salt, err := s.salt()
		if err != nil {
			db.Close()
			return nil, err
		}
		s.sealer, err = seal.NewPassphraseSealer(opts.Passphrase, salt, params)
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// salt loads the database salt, creating it on first use.
func (s *Store) salt() ([]byte, error) {
	var salt []byte
	err := s.db.QueryRow(`SELECT value FROM meta WHERE name = 'salt'`).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}

	salt, err = seal.NewSalt()
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`INSERT INTO meta (name, value) VALUES ('salt', ?)`, salt); err != nil {
		return nil, fmt.Errorf("failed to store salt: %w", err)
	}
	return salt, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) associated(key string) []byte {
	return []byte(s.namespace + "\x00" + key)
}

// read returns the decoded value of key if it holds kind.
func (s *Store) read(key string, kind reflect.Kind) (any, bool, error) {
	var (
		storedKind string
		blob       []byte
	)
	err := s.db.QueryRow(
		`SELECT kind, value FROM entries WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&storedKind, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	if storedKind != kind.String() {
		return nil, false, nil
	}

	plain, err := s.sealer.Open(blob, s.associated(key))
	if err != nil {
		return nil, false, fmt.Errorf("failed to open %q: %w", key, err)
	}
	v, err := decodeNative(kind, plain)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) write(key string, kind reflect.Kind, value any) error {
	if key == "" {
		return store.ErrEmptyKey
	}
	plain, err := encodeNative(kind, value)
	if err != nil {
		return err
	}
	blob, err := s.sealer.Seal(plain, s.associated(key))
	if err != nil {
		return err
	}

	s.mu.Lock()
	_, err = s.db.Exec(`
		INSERT INTO entries (namespace, key, kind, value, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM entries WHERE namespace = ?))
		ON CONFLICT (namespace, key) DO UPDATE SET
			kind = excluded.kind, value = excluded.value, seq = excluded.seq`,
		s.namespace, key, kind.String(), blob, s.namespace)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}

	s.listeners.Notify(s, store.ChangeEvent{Key: key})
	return nil
}

// GetBool implements store.Backend.
func (s *Store) GetBool(key string, def bool) (bool, error) {
	v, ok, err := s.read(key, reflect.Bool)
	if !ok {
		return def, err
	}
	return v.(bool), nil
}

// GetInt32 implements store.Backend.
func (s *Store) GetInt32(key string, def int32) (int32, error) {
	v, ok, err := s.read(key, reflect.Int32)
	if !ok {
		return def, err
	}
	return v.(int32), nil
}

// GetInt64 implements store.Backend.
func (s *Store) GetInt64(key string, def int64) (int64, error) {
	v, ok, err := s.read(key, reflect.Int64)
	if !ok {
		return def, err
	}
	return v.(int64), nil
}

// GetFloat32 implements store.Backend.
func (s *Store) GetFloat32(key string, def float32) (float32, error) {
	v, ok, err := s.read(key, reflect.Float32)
	if !ok {
		return def, err
	}
	return v.(float32), nil
}

// GetString implements store.Backend.
func (s *Store) GetString(key string, def string) (string, error) {
	v, ok, err := s.read(key, reflect.String)
	if !ok {
		return def, err
	}
	return v.(string), nil
}

// GetStringSet implements store.Backend.
func (s *Store) GetStringSet(key string, def []string) ([]string, error) {
	v, ok, err := s.read(key, reflect.Slice)
	if !ok {
		return def, err
	}
	return v.([]string), nil
}

// PutBool implements store.Backend.
func (s *Store) PutBool(key string, value bool) error { return s.write(key, reflect.Bool, value) }

// PutInt32 implements store.Backend.
func (s *Store) PutInt32(key string, value int32) error { return s.write(key, reflect.Int32, value) }

// PutInt64 implements store.Backend.
func (s *Store) PutInt64(key string, value int64) error { return s.write(key, reflect.Int64, value) }

// PutFloat32 implements store.Backend.
func (s *Store) PutFloat32(key string, value float32) error {
	return s.write(key, reflect.Float32, value)
}

// PutString implements store.Backend.
func (s *Store) PutString(key string, value string) error { return s.write(key, reflect.String, value) }

// PutStringSet implements store.Backend.
func (s *Store) PutStringSet(key string, value []string) error {
	return s.write(key, reflect.Slice, store.NormalizeSet(value))
}

// Remove implements store.Backend.
func (s *Store) Remove(key string) error {
	if key == "" {
		return store.ErrEmptyKey
	}
	s.mu.Lock()
	_, err := s.db.Exec(`DELETE FROM entries WHERE namespace = ? AND key = ?`, s.namespace, key)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	s.listeners.Notify(s, store.ChangeEvent{Key: key})
	return nil
}

// Clear implements store.Backend. Only the store's namespace is cleared.
func (s *Store) Clear() error {
	s.mu.Lock()
	_, err := s.db.Exec(`DELETE FROM entries WHERE namespace = ?`, s.namespace)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to clear: %w", err)
	}
	s.listeners.Notify(s, store.ChangeEvent{Bulk: true})
	return nil
}

// Keys implements store.Backend.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM entries WHERE namespace = ? ORDER BY seq`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// All implements store.Backend.
func (s *Store) All() (map[string]any, error) {
	rows, err := s.db.Query(`SELECT key, kind, value FROM entries WHERE namespace = ?`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var (
			key, kind string
			blob      []byte
		)
		if err := rows.Scan(&key, &kind, &blob); err != nil {
			return nil, err
		}
		plain, err := s.sealer.Open(blob, s.associated(key))
		if err != nil {
			return nil, fmt.Errorf("failed to open %q: %w", key, err)
		}
		v, err := decodeRaw(kind, plain)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %q: %w", key, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

func decodeRaw(kind string, plain []byte) (any, error) {
	k, ok := nativeKinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	return decodeNative(k, plain)
}

// RegisterListener implements store.Backend.
func (s *Store) RegisterListener(l store.Listener) error { return s.listeners.Register(l) }

// UnregisterListener implements store.Backend.
func (s *Store) UnregisterListener(l store.Listener) { s.listeners.Unregister(l) }
