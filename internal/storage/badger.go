package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const opTimeout = 3 * time.Second

// BadgerStore keeps values in an embedded badger database on local
// disk, so they survive process restarts.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger database under dir. An empty
// dir opens an in-memory database that vanishes on Close.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return string(val), true, nil
}

func (s *BadgerStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("%w: database closed", ErrRead)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
