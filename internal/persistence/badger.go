package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	recordPrefix     = "interview:record:"
	checkpointPrefix = "interview:checkpoint:"
)

// BadgerStore keeps msgpack-encoded records and checkpoints in BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

type BadgerOptions struct {
	// Dir is required unless InMemory is set.
	Dir      string
	InMemory bool
}

func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("persistence: badger dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("persistence: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) SaveCheckpoint(_ context.Context, cp Checkpoint) error {
	data, err := msgpack.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("persistence: encode checkpoint: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(checkpointPrefix+cp.SessionID), data)
	})
}

// SaveRecord stores the record and drops the session's checkpoint in the
// same transaction.
func (b *BadgerStore) SaveRecord(_ context.Context, r Record) error {
	data, err := msgpack.Marshal(&r)
	if err != nil {
		return fmt.Errorf("persistence: encode record: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(recordPrefix+r.SessionID), data); err != nil {
			return err
		}
		return txn.Delete([]byte(checkpointPrefix + r.SessionID))
	})
}

func (b *BadgerStore) GetRecord(_ context.Context, sessionID string) (Record, error) {
	var r Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordPrefix + sessionID))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return msgpack.Unmarshal(val, &r)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotFound
	}
	return r, err
}

// ListRecords returns all records in key order.
func (b *BadgerStore) ListRecords(_ context.Context) ([]Record, error) {
	var out []Record
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var r Record
			if err := msgpack.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("persistence: decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// LoadCheckpoint returns the latest checkpoint of a session that never
// reached a final record.
func (b *BadgerStore) LoadCheckpoint(_ context.Context, sessionID string) (Checkpoint, error) {
	var cp Checkpoint
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(checkpointPrefix + sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &cp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Checkpoint{}, ErrNotFound
	}
	return cp, err
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's errors and warnings to the standard log.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { log.Printf("[badger] ERROR: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { log.Printf("[badger] WARN: "+f, v...) }
func (badgerLogger) Infof(string, ...interface{})        {}
func (badgerLogger) Debugf(string, ...interface{})       {}
