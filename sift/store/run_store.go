/* siftd - SIFT geographic forwarding
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-yaml"
	"github.com/resilinets/siftd/sift/core"
)

var ErrBadName = errors.New("run name must be non-empty and free of NUL bytes")

// RunStore archives run records in badger, keyed by name then finish time.
type RunStore struct {
	db *badger.DB
}

// OpenRunStore opens (or creates) a store in the given directory.
func OpenRunStore(path string) (*RunStore, error) {
	return openRunStore(badger.DefaultOptions(path))
}

// OpenMemRunStore opens a store that lives only in memory.
func OpenMemRunStore() (*RunStore, error) {
	return openRunStore(badger.DefaultOptions("").WithInMemory(true))
}

func openRunStore(opts badger.Options) (*RunStore, error) {
	db, err := badger.Open(opts.WithLogger(badgerLogger{}))
	if err != nil {
		return nil, err
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) String() string {
	return "run-store"
}

func (s *RunStore) Close() error {
	return s.db.Close()
}

// Put archives a record. A record with the same name and time is replaced.
func (s *RunStore) Put(rec *Record) error {
	key, err := recordKey(rec.Name, rec.Time_ns)
	if err != nil {
		return err
	}
	val, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// List returns the records of a run name, oldest first.
// An empty name lists every record, ordered by name.
func (s *RunStore) List(name string) (recs []*Record, err error) {
	prefix, err := namePrefix(name)
	if err != nil {
		return nil, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rec, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

// Latest returns the newest record of a run name, or nil if there is none.
func (s *RunStore) Latest(name string) (rec *Record, err error) {
	if name == "" {
		return nil, ErrBadName
	}
	prefix, err := namePrefix(name)
	if err != nil {
		return nil, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true // newest first
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(append(prefix, 0xFF))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		rec, err = decodeItem(it.Item())
		return err
	})
	return rec, err
}

// Remove deletes every record of a run name and returns how many there were.
func (s *RunStore) Remove(name string) (n int, err error) {
	if name == "" {
		return 0, ErrBadName
	}
	prefix, err := namePrefix(name)
	if err != nil {
		return 0, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // keys only
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func decodeItem(item *badger.Item) (*Record, error) {
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	rec := &Record{}
	if err := yaml.Unmarshal(val, rec); err != nil {
		return nil, fmt.Errorf("corrupt record %q: %w", item.Key(), err)
	}
	return rec, nil
}

// namePrefix is the name followed by a NUL, or nothing for the empty name.
func namePrefix(name string) ([]byte, error) {
	if strings.IndexByte(name, 0) >= 0 {
		return nil, ErrBadName
	}
	if name == "" {
		return []byte{}, nil
	}
	return append([]byte(name), 0), nil
}

func recordKey(name string, t int64) ([]byte, error) {
	if name == "" {
		return nil, ErrBadName
	}
	prefix, err := namePrefix(name)
	if err != nil {
		return nil, err
	}
	return binary.BigEndian.AppendUint64(prefix, uint64(t)), nil
}

// badgerLogger sends badger's own messages to the core logger.
type badgerLogger struct{}

func (badgerLogger) String() string {
	return "badger"
}

func (l badgerLogger) Errorf(format string, v ...any) {
	core.Log.Error(l, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l badgerLogger) Warningf(format string, v ...any) {
	core.Log.Warn(l, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l badgerLogger) Infof(format string, v ...any) {
	core.Log.Debug(l, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l badgerLogger) Debugf(format string, v ...any) {
	core.Log.Trace(l, strings.TrimSpace(fmt.Sprintf(format, v...)))
}
