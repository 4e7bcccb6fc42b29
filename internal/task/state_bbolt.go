package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Roelanb/churnboard/internal/actions"
)

var (
	actionsBucket = []byte("actions")
	metaBucket    = []byte("meta")

	statsKey = []byte("stats")
)

type BBoltStore struct {
	db *bolt.DB
}

func OpenBBolt(path string) (*BBoltStore, error) {
	if path == "" {
		return nil, errors.New("bbolt path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir state dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, e := tx.CreateBucketIfNotExists(actionsBucket); e != nil {
			return e
		}
		if _, e := tx.CreateBucketIfNotExists(metaBucket); e != nil {
			return e
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BBoltStore{db: db}, nil
}

func (s *BBoltStore) Close() error {
	return s.db.Close()
}

func (s *BBoltStore) Put(rec *ActionRecord) error {
	touch(rec)
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(actionsBucket), []byte(rec.Action), rec)
	})
}

func (s *BBoltStore) Get(action string) (*ActionRecord, error) {
	var out *ActionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(actionsBucket).Get([]byte(action))
		if v == nil {
			return nil
		}
		var rec ActionRecord
		if e := json.Unmarshal(v, &rec); e != nil {
			return e
		}
		out = &rec
		return nil
	})
	return out, err
}

// Mark records the end of a run, creating the record on first use.
func (s *BBoltStore) Mark(action string, status Status, message, lastErr, correlation string) error {
	k := []byte(action)
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(actionsBucket)
		rec := ActionRecord{Action: action}
		if v := bkt.Get(k); v != nil {
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
		}
		rec.apply(status, message, lastErr, correlation)
		return putJSON(bkt, k, &rec)
	})
}

func (s *BBoltStore) List() ([]ActionRecord, error) {
	var out []ActionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(actionsBucket).ForEach(func(_, v []byte) error {
			var rec ActionRecord
			if e := json.Unmarshal(v, &rec); e != nil {
				return e
			}
			out = append(out, rec)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out, err
}

func (s *BBoltStore) LastStats() (*actions.Stats, bool, error) {
	var out *actions.Stats
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(statsKey)
		if v == nil {
			return nil
		}
		var st actions.Stats
		if e := json.Unmarshal(v, &st); e != nil {
			return e
		}
		out = &st
		return nil
	})
	return out, out != nil, err
}

func (s *BBoltStore) SaveStats(st actions.Stats) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(metaBucket), statsKey, st)
	})
}

func putJSON(b *bolt.Bucket, k []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(k, data)
}
