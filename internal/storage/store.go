package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	runsBucket     = []byte("runs")
	articlesBucket = []byte("articles")
)

// ErrNotFound is returned when a run or article has no entry.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{runsBucket, articlesBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun records a run, replacing any earlier run for the same date.
func (s *Store) SaveRun(run *Run) error {
	if run.Date == "" {
		return fmt.Errorf("run date is required")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(runsBucket)
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put([]byte(run.Date), data)
	})
}

func (s *Store) GetRun(date string) (*Run, error) {
	var run Run
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(runsBucket).Get([]byte(date))
		if data == nil {
			return fmt.Errorf("run %s: %w", date, ErrNotFound)
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs newest date first. A limit of zero returns all runs.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	var runs []*Run
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		// Date keys sort lexically, so walking backwards is newest first.
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				continue
			}
			runs = append(runs, &run)
			if limit > 0 && len(runs) >= limit {
				break
			}
		}
		return nil
	})
	return runs, err
}

// SaveArticleStates merges fetch outcomes into the per-URL state. The
// earliest FirstAppearedAt wins and Attempts accumulates across runs.
func (s *Store) SaveArticleStates(states []*ArticleState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(articlesBucket)
		for _, state := range states {
			merged := *state
			if merged.Attempts == 0 {
				merged.Attempts = 1
			}
			if merged.FetchOK && merged.LastSucceeded.IsZero() {
				merged.LastSucceeded = merged.LastFetched
			}

			if data := b.Get([]byte(state.URL)); data != nil {
				var prev ArticleState
				if err := json.Unmarshal(data, &prev); err == nil {
					merged.Attempts += prev.Attempts
					if !prev.FirstAppearedAt.IsZero() && prev.FirstAppearedAt.Before(merged.FirstAppearedAt) {
						merged.FirstAppearedAt = prev.FirstAppearedAt
					}
					if !merged.FetchOK {
						merged.LastSucceeded = prev.LastSucceeded
						if merged.Title == "" {
							merged.Title = prev.Title
						}
					}
				}
			}

			data, err := json.Marshal(&merged)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(state.URL), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetArticleState(url string) (*ArticleState, error) {
	var state ArticleState
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(articlesBucket).Get([]byte(url))
		if data == nil {
			return fmt.Errorf("article %s: %w", url, ErrNotFound)
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// GetArticleStates returns tracked URLs, most recently fetched first.
func (s *Store) GetArticleStates(limit int) ([]*ArticleState, error) {
	var states []*ArticleState
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(articlesBucket).ForEach(func(_ []byte, v []byte) error {
			var state ArticleState
			if err := json.Unmarshal(v, &state); err != nil {
				return nil
			}
			states = append(states, &state)
			return nil
		})
	})
	sort.Slice(states, func(i, j int) bool {
		return states[i].LastFetched.After(states[j].LastFetched)
	})
	if limit > 0 && len(states) > limit {
		states = states[:limit]
	}
	return states, err
}

func (s *Store) CountArticles() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(articlesBucket).Stats().KeyN
		return nil
	})
	return n, err
}
