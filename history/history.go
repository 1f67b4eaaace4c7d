// Package history keeps a local ledger of pipeline runs in a bbolt file.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Status of a finished run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("history: run not found")

var runsBucket = []byte("runs")

// Record is one run in the ledger.
type Record struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Concept          string    `json:"concept"`
	ConceptSource    string    `json:"concept_source"`
	BackgroundSource string    `json:"background_source,omitempty"`
	VideoID          string    `json:"video_id,omitempty"`
	ArchiveKey       string    `json:"archive_key,omitempty"`
	Status           Status    `json:"status"`
	Stage            string    `json:"stage,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Duration is the wall time of the run.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store is a bbolt-backed ledger. Run IDs are UUIDv7, so key order is
// chronological.
type Store struct {
	db *bolt.DB
}

func getBucket(name []byte, tx *bolt.Tx) (*bolt.Bucket, error) {
	if b := tx.Bucket(name); b != nil {
		return b, nil
	}
	if !tx.Writable() {
		return nil, nil
	}
	return tx.CreateBucket(name)
}

// Open opens (or creates) the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := getBucket(runsBucket, tx)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a record.
func (s *Store) Put(r Record) error {
	if r.RunID == "" {
		return errors.New("history: record has no run id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("history: encode %s: %w", r.RunID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := getBucket(runsBucket, tx)
		if err != nil {
			return err
		}
		return b.Put([]byte(r.RunID), data)
	})
}

// Get returns the record for runID.
func (s *Store) Get(runID string) (Record, error) {
	var r Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b, _ := getBucket(runsBucket, tx)
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(runID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &r)
	})
	return r, err
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b, _ := getBucket(runsBucket, tx)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("history: decode %s: %w", k, err)
			}
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}
