// Package bbolt stores persisted mementos in a single bbolt file. Every Put is
// its own read-write transaction, so an object is replaced atomically.
package bbolt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"brooklyn/internal/objectstore/core"
)

var objectsBucket = []byte("objects")

// Store implements core.Store on bbolt.
type Store struct {
	db   *bolt.DB
	path string
}

// New opens (or creates) the database file at path.
func New(path string) (*Store, error) {
	if path == "" {
		path = "brooklyn-state.bolt"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(objectsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket %q: %w", objectsBucket, err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverBolt }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Put(_ context.Context, key string, data []byte) (core.Info, error) {
	if err := core.ValidateKey(key); err != nil {
		return core.Info{}, err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(objectsBucket).Put([]byte(key), data)
	})
	if err != nil {
		return core.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	return core.Info{Key: key, Size: int64(len(data))}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucket).Get([]byte(key))
		if v == nil {
			return core.NotFound(key)
		}
		// v is only valid for the life of the transaction
		out = bytes.Clone(v)
		return nil
	})
	return out, err
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	info := core.Info{Key: key}
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucket).Get([]byte(key))
		if v == nil {
			return core.NotFound(key)
		}
		info.Size = int64(len(v))
		return nil
	})
	return info, err
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		if b.Get([]byte(key)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(key))
	})
	return existed, err
}

func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(objectsBucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			infos = append(infos, core.Info{Key: string(k), Size: int64(len(v))})
		}
		return nil
	})
	return infos, err
}

func (s *Store) Close() error { return s.db.Close() }
