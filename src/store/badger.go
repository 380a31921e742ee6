package store

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/square-key-labs/strawgo-intercom/src/logger"
)

// Badger is a Backend backed by an embedded BadgerDB.
type Badger struct {
	db *badger.DB
}

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	// Dir is the directory for data files. Required unless InMemory is set.
	Dir string

	// InMemory runs Badger without touching disk. Used by tests.
	InMemory bool
}

// NewBadger opens a Badger backend.
func NewBadger(config BadgerConfig) (*Badger, error) {
	if !config.InMemory && config.Dir == "" {
		return nil, errors.New("store: badger dir is required for on-disk mode")
	}
	opts := badger.DefaultOptions(config.Dir)
	if config.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{log: logger.WithPrefix("Badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key string) (string, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (b *Badger) Set(_ context.Context, key, value string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

func (b *Badger) Keys(_ context.Context) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger warnings and errors into the intercom logger and
// drops its info/debug chatter.
type badgerLogger struct {
	log *logger.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.log.Error(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warn(f, v...) }
func (badgerLogger) Infof(string, ...interface{})          {}
func (badgerLogger) Debugf(string, ...interface{})         {}
