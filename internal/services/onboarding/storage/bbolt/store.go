// Package bbolt stores wizard session values in a BoltDB file, one nested
// bucket per session.
package bbolt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"go.etcd.io/bbolt"
)

const sessionsBucket = "sessions"

// Store provides a BoltDB-backed session store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get loads one value. The returned slice is a copy; bolt memory is only
// valid inside the transaction.
func (s *Store) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s == nil || s.db == nil {
		return nil, false, storage.ErrNotConfigured
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(sessionsBucket))
		if root == nil {
			return fmt.Errorf("sessions bucket is missing")
		}
		session := root.Bucket(sessionKey(sessionID))
		if session == nil {
			return nil
		}
		if payload := session.Get([]byte(key)); payload != nil {
			value = append([]byte{}, payload...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

// Set overwrites one value.
func (s *Store) Set(ctx context.Context, sessionID, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return storage.ErrNotConfigured
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	if value == nil {
		value = []byte{}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(sessionsBucket))
		if root == nil {
			return fmt.Errorf("sessions bucket is missing")
		}
		session, err := root.CreateBucketIfNotExists(sessionKey(sessionID))
		if err != nil {
			return fmt.Errorf("create session bucket: %w", err)
		}
		return session.Put([]byte(key), value)
	})
}

// Remove deletes the named keys and drops the session bucket once empty.
func (s *Store) Remove(ctx context.Context, sessionID string, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return storage.ErrNotConfigured
	}
	if len(keys) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(sessionsBucket))
		if root == nil {
			return fmt.Errorf("sessions bucket is missing")
		}
		session := root.Bucket(sessionKey(sessionID))
		if session == nil {
			return nil
		}
		for _, key := range keys {
			if err := session.Delete([]byte(key)); err != nil {
				return fmt.Errorf("remove %s: %w", key, err)
			}
		}
		if k, _ := session.Cursor().First(); k == nil {
			return root.DeleteBucket(sessionKey(sessionID))
		}
		return nil
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket)); err != nil {
			return fmt.Errorf("create sessions bucket: %w", err)
		}
		return nil
	})
}

// sessionKey keeps the empty session addressable; bolt rejects empty
// bucket names.
func sessionKey(sessionID string) []byte {
	return []byte("session/" + strings.TrimSpace(sessionID))
}
