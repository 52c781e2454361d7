// Package leveldb implements kv.Backend on goleveldb.
package leveldb

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/canopy-network/chaincache/pkg/db/kv"
)

// Name is the backend identifier used in configuration.
const Name = "leveldb"

// Backend is a persistent key-value store using LevelDB.
type Backend struct {
	db *leveldb.DB
}

var _ kv.Backend = (*Backend)(nil)

// Options tunes the on-disk database.
type Options struct {
	// SyncWrites forces an fsync of the journal on every committed write.
	SyncWrites bool
}

// Open creates or opens a LevelDB database at the specified path.
func Open(path string, opts Options) (*Backend, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{NoSync: !opts.SyncWrites})
	if err != nil {
		return nil, err
	}
	return &Backend{db: db}, nil
}

// OpenMemory opens a database that lives entirely in memory. Used by tests and ephemeral caches.
func OpenMemory() (*Backend, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Backend{db: db}, nil
}

// Name implements kv.Backend.
func (b *Backend) Name() string { return Name }

// View runs fn against a snapshot of the database.
func (b *Backend) View(fn func(kv.Reader) error) error {
	snap, err := b.db.GetSnapshot()
	if err != nil {
		return err
	}
	defer snap.Release()
	return fn(snapshotReader{snap: snap})
}

// Update runs fn inside a LevelDB transaction. LevelDB allows a single open transaction and blocks
// other writers until it is committed or discarded, which serializes read-modify-write cycles.
func (b *Backend) Update(fn func(kv.Writer) error) error {
	tr, err := b.db.OpenTransaction()
	if err != nil {
		return err
	}
	if err := fn(txWriter{tr: tr}); err != nil {
		tr.Discard()
		return err
	}
	return tr.Commit()
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

type snapshotReader struct {
	snap *leveldb.Snapshot
}

func (r snapshotReader) Get(key []byte) ([]byte, error) {
	return notFound(r.snap.Get(key, nil))
}

func (r snapshotReader) Iterate(prefix []byte, reverse bool, fn func(key, value []byte) (bool, error)) error {
	return iterate(r.snap.NewIterator(util.BytesPrefix(prefix), nil), reverse, fn)
}

type txWriter struct {
	tr *leveldb.Transaction
}

func (w txWriter) Get(key []byte) ([]byte, error) {
	return notFound(w.tr.Get(key, nil))
}

func (w txWriter) Iterate(prefix []byte, reverse bool, fn func(key, value []byte) (bool, error)) error {
	return iterate(w.tr.NewIterator(util.BytesPrefix(prefix), nil), reverse, fn)
}

func (w txWriter) Set(key, value []byte) error {
	return w.tr.Put(key, value, nil)
}

func (w txWriter) Delete(key []byte) error {
	return w.tr.Delete(key, nil)
}

func notFound(value []byte, err error) ([]byte, error) {
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, kv.ErrNotFound
	}
	return value, err
}

func iterate(it iterator.Iterator, reverse bool, fn func(key, value []byte) (bool, error)) error {
	defer it.Release()

	ok := it.First()
	if reverse {
		ok = it.Last()
	}
	for ; ok; ok = step(it, reverse) {
		more, err := fn(it.Key(), it.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return it.Error()
}

func step(it iterator.Iterator, reverse bool) bool {
	if reverse {
		return it.Prev()
	}
	return it.Next()
}
