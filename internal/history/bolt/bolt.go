// Package bolt is an alternative history backend on a bbolt file: one
// nested bucket per session, keys are big-endian sequence numbers and values
// are JSON-encoded turns.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/nadzzz/yasna/internal/history"
)

var sessionsBucket = []byte("sessions")

// Backend implements history.Backend on bbolt.
type Backend struct {
	db *bolt.DB
}

// Open opens (creating if needed) the bolt file at path.
func Open(path string) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Backend{db: db}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Insert stores each turn under its session's next sequence number, all in
// one update transaction.
func (b *Backend) Insert(ctx context.Context, turns ...history.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, t := range turns {
			sb, err := tx.Bucket(sessionsBucket).CreateBucketIfNotExists([]byte(t.SessionID))
			if err != nil {
				return err
			}
			seq, err := sb.NextSequence()
			if err != nil {
				return err
			}
			t.ID = int64(seq)
			enc, err := json.Marshal(t)
			if err != nil {
				return err
			}
			if err := sb.Put(itob(seq), enc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert turns: %w", err)
	}
	return nil
}

// newestFirst loads every turn of a session bucket, newest first. Sessions
// are capped, so the full scan stays small.
func newestFirst(sb *bolt.Bucket) ([]history.Turn, error) {
	var turns []history.Turn
	err := sb.ForEach(func(k, v []byte) error {
		var t history.Turn
		if err := json.Unmarshal(v, &t); err != nil {
			return fmt.Errorf("decode turn %d: %w", binary.BigEndian.Uint64(k), err)
		}
		turns = append(turns, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(turns, func(i, j int) bool {
		if !turns[i].CreatedAt.Equal(turns[j].CreatedAt) {
			return turns[i].CreatedAt.After(turns[j].CreatedAt)
		}
		return turns[i].ID > turns[j].ID
	})
	return turns, nil
}

// Latest returns up to limit turns of a session, newest first.
func (b *Backend) Latest(ctx context.Context, sessionID string, limit int) ([]history.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []history.Turn
	err := b.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if sb == nil {
			return nil
		}
		turns, err := newestFirst(sb)
		if err != nil {
			return err
		}
		if len(turns) > limit {
			turns = turns[:limit]
		}
		out = turns
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	return out, nil
}

// Prune keeps only the keep most recent turns of a session.
func (b *Backend) Prune(ctx context.Context, sessionID string, keep int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		sb := tx.Bucket(sessionsBucket).Bucket([]byte(sessionID))
		if sb == nil {
			return nil
		}
		turns, err := newestFirst(sb)
		if err != nil {
			return err
		}
		if len(turns) <= keep {
			return nil
		}
		for _, t := range turns[keep:] {
			if err := sb.Delete(itob(uint64(t.ID))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("prune turns: %w", err)
	}
	return nil
}

// Delete drops the session's bucket.
func (b *Backend) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(sessionsBucket)
		if root.Bucket([]byte(sessionID)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(sessionID))
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close closes the bolt file.
func (b *Backend) Close() error {
	return b.db.Close()
}
