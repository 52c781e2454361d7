// Package pebble implements kv.Backend on CockroachDB's Pebble engine.
package pebble

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"go.uber.org/zap"

	"github.com/canopy-network/chaincache/pkg/db/kv"
)

// Name is the backend identifier used in configuration.
const Name = "pebble"

// Backend wraps a Pebble database. Pebble batches do not isolate concurrent writers, so Update
// holds a mutex for the whole read-modify-write cycle.
type Backend struct {
	db *pebble.DB
	wo *pebble.WriteOptions
	mu sync.Mutex
}

var _ kv.Backend = (*Backend)(nil)

// Options tunes the on-disk database.
type Options struct {
	SyncWrites bool
	Logger     *zap.Logger
}

// Open creates or opens a Pebble database in dir.
func Open(dir string, opts Options) (*Backend, error) {
	return open(dir, &pebble.Options{}, opts)
}

// OpenMemory opens a database backed by an in-memory filesystem.
func OpenMemory(opts Options) (*Backend, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()}, opts)
}

func open(dir string, po *pebble.Options, opts Options) (*Backend, error) {
	if opts.Logger != nil {
		po.Logger = opts.Logger.Named("pebble").Sugar()
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, err
	}
	wo := pebble.NoSync
	if opts.SyncWrites {
		wo = pebble.Sync
	}
	return &Backend{db: db, wo: wo}, nil
}

// Name implements kv.Backend.
func (b *Backend) Name() string { return Name }

// View runs fn against a Pebble snapshot.
func (b *Backend) View(fn func(kv.Reader) error) error {
	snap := b.db.NewSnapshot()
	defer snap.Close()
	return fn(reader{src: snap})
}

// Update runs fn against an indexed batch and commits it atomically.
func (b *Backend) Update(fn func(kv.Writer) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.db.NewIndexedBatch()
	defer batch.Close()

	if err := fn(writer{reader: reader{src: batch}, batch: batch}); err != nil {
		return err
	}
	return batch.Commit(b.wo)
}

// Close flushes and closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// source is implemented by both *pebble.Snapshot and *pebble.Batch.
type source interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type reader struct {
	src source
}

func (r reader) Get(key []byte) ([]byte, error) {
	value, closer, err := r.src.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(value), nil
}

func (r reader) Iterate(prefix []byte, reverse bool, fn func(key, value []byte) (bool, error)) error {
	opts := &pebble.IterOptions{UpperBound: kv.PrefixEnd(prefix)}
	// an empty, non-nil lower bound trips pebble's invariant checks
	if len(prefix) > 0 {
		opts.LowerBound = prefix
	}
	it, err := r.src.NewIter(opts)
	if err != nil {
		return err
	}

	ok := it.First()
	if reverse {
		ok = it.Last()
	}
	for ; ok; ok = step(it, reverse) {
		more, err := fn(it.Key(), it.Value())
		if err != nil {
			_ = it.Close()
			return err
		}
		if !more {
			break
		}
	}
	if err := it.Error(); err != nil {
		_ = it.Close()
		return err
	}
	return it.Close()
}

func step(it *pebble.Iterator, reverse bool) bool {
	if reverse {
		return it.Prev()
	}
	return it.Next()
}

type writer struct {
	reader
	batch *pebble.Batch
}

func (w writer) Set(key, value []byte) error {
	return w.batch.Set(key, value, nil)
}

func (w writer) Delete(key []byte) error {
	return w.batch.Delete(key, nil)
}
