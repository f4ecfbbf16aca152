// Package history records a post-hoc, append-only summary of each
// completed pipeline run in a local bbolt database, for audit purposes
// only. It is never consulted to resume or reconstruct a live run's
// state: persistence of in-flight execution state remains out of scope.
package history

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// RunSummary is one completed run's audit record.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Repo       string    `json:"repo"`
	Branch     string    `json:"branch"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  bool      `json:"succeeded"`
	FailReason string    `json:"fail_reason,omitempty"`
	TasksTotal int       `json:"tasks_total"`
}

// Store is a thin wrapper around a bbolt database holding RunSummary
// records keyed by run id.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init history buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put appends (or overwrites, for a re-run with the same RunID) a
// RunSummary.
func (s *Store) Put(summary RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(summary.RunID), data)
	})
}

// List returns every recorded RunSummary, oldest StartedAt first.
func (s *Store) List() ([]RunSummary, error) {
	var out []RunSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var rs RunSummary
			if err := json.Unmarshal(v, &rs); err != nil {
				return fmt.Errorf("unmarshal run summary %s: %w", k, err)
			}
			out = append(out, rs)
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, err
}
