// Package store is the embedded persistence layer: a single Pebble (LSM
// key/value) database holding every "table" the spec describes as namespaced
// key prefixes, the same move the teacher made for its own thread/message
// tables.
package store

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"adcprecorder/pkg/logger"
)

var db *pebble.DB
var dbPath string

// Each "table" gets its own monotonic counter so one table's id sequence
// never skips values because another table happened to write in between —
// spec.md §8 requires raw_lines ids stay gap-free even though parsed
// records and parse errors are written to the same database right after
// each raw line (pkg/consumer.handle interleaves all three per sentence).
var (
	rawSeq uint64
	errSeq uint64

	recSeqMu sync.Mutex
	recSeq   = map[string]*uint64{}
)

// Open opens (or creates) the Pebble database at the given path.
func Open(path string) error {
	var err error
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	return nil
}

// Close closes the opened database if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// nextRawSeq returns the next id in the raw_lines sequence.
func nextRawSeq() uint64 {
	return atomic.AddUint64(&rawSeq, 1)
}

// nextErrSeq returns the next id in the parse_errors sequence.
func nextErrSeq() uint64 {
	return atomic.AddUint64(&errSeq, 1)
}

// nextRecSeq returns the next id in prefix's parsed-record sequence,
// creating that sequence's counter on first use.
func nextRecSeq(prefix string) uint64 {
	recSeqMu.Lock()
	p, ok := recSeq[prefix]
	if !ok {
		p = new(uint64)
		recSeq[prefix] = p
	}
	recSeqMu.Unlock()
	return atomic.AddUint64(p, 1)
}

// ApplyBatch applies a prepared pebble.Batch to the DB.
func ApplyBatch(batch *pebble.Batch, sync bool) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	var err error
	if sync {
		err = db.Apply(batch, pebble.Sync)
	} else {
		err = db.Apply(batch, pebble.NoSync)
	}
	if err != nil {
		logger.Error("pebble_apply_batch_failed", "error", err)
	}
	return err
}

// GetKey returns the raw value for the given key.
func GetKey(key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			logger.Debug("get_key_missing", "key", key)
		} else {
			logger.Error("get_key_failed", "key", key, "error", err)
		}
		return "", err
	}
	defer closer.Close()
	return string(v), nil
}

// SaveKey stores an arbitrary key/value pair.
func SaveKey(key string, value []byte) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Set([]byte(key), value, pebble.Sync); err != nil {
		logger.Error("save_key_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// DeleteKey removes the given key from the DB.
func DeleteKey(key string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Delete([]byte(key), pebble.Sync); err != nil {
		logger.Error("delete_key_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// IsNotFound reports whether err originates from Pebble's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// ListKeys returns all keys under the given prefix, in key order. An empty
// prefix lists every key in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	pfx := []byte(prefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if prefix != "" && !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}

// scanPrefix iterates every key/value pair under prefix calling fn for each.
// Iteration stops early if fn returns false.
func scanPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}
