// Package resultstore is a CLI-level, optional cache for the expensive half
// of a run: LDF+DBC parsing. It persists a gob-encoded busmodel.BusModel
// under its source files' combined content hash in a SQLite database, so
// repeated `analyze` invocations against the same LDF/DBC set skip
// re-parsing. The engine itself never reads from this store (SPEC_FULL.md's
// DOMAIN STACK section) — it is wired from cmd/linspect only.
package resultstore

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/anodyne74/linspect/internal/busmodel"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed cache of parsed BusModels, keyed by the combined
// content hash of the LDF/DBC source files that produced them.
type Store struct {
	db *sql.DB
}

// Open creates or opens the cache database at dbPath, following the
// teacher's NewSQLiteStore shape (internal/datastore/sqlite.go).
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("resultstore: opening %s: %w", dbPath, err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS bus_models (
		source_hash TEXT PRIMARY KEY,
		cached_at   TIMESTAMP NOT NULL,
		model_gob   BLOB NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("resultstore: creating table: %w", err)
	}
	return nil
}

// HashSources combines the content of every LDF/DBC source file into one
// cache key, so changing any one of them invalidates the cache entry.
func HashSources(contents ...[]byte) string {
	h := sha256.New()
	for _, c := range contents {
		h.Write(c)
		h.Write([]byte{0}) // separator, avoids accidental concatenation collisions
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached BusModel for sourceHash, or ok=false on a cache
// miss. A decode failure is treated as a miss rather than an error: the
// cache is an optimization, never a source of truth.
func (s *Store) Get(sourceHash string) (*busmodel.BusModel, bool, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT model_gob FROM bus_models WHERE source_hash = ?`, sourceHash).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resultstore: querying %s: %w", sourceHash, err)
	}

	var model busmodel.BusModel
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&model); err != nil {
		return nil, false, nil
	}
	return &model, true, nil
}

// Put stores model under sourceHash, replacing any existing entry.
func (s *Store) Put(sourceHash string, model *busmodel.BusModel) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(model); err != nil {
		return fmt.Errorf("resultstore: encoding model for %s: %w", sourceHash, err)
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO bus_models (source_hash, cached_at, model_gob) VALUES (?, ?, ?)`,
		sourceHash, time.Now(), buf.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("resultstore: storing %s: %w", sourceHash, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("resultstore: closing: %w", err)
	}
	return nil
}
