// Package engine is the storage engine of the chain-state cache: durable tables with primary keys,
// secondary indices and atomic multi-record transactions on top of a kv.Backend.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/canopy-network/chaincache/pkg/db/kv"
	"github.com/canopy-network/chaincache/pkg/db/kv/leveldb"
	"github.com/canopy-network/chaincache/pkg/db/kv/pebble"
	"github.com/canopy-network/chaincache/pkg/metrics"
	"github.com/canopy-network/chaincache/pkg/retry"
)

var (
	// ErrStorageUnavailable wraps every failure of the underlying store (I/O, corruption, lock).
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidRecord marks a write rejected before persistence because a required field is
	// missing or malformed.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("storage engine closed")

	// ErrSchemaVersion is returned when the store was written by a newer, unknown schema.
	ErrSchemaVersion = errors.New("unsupported schema version")
)

var errUnsupportedBackend = errors.New("unsupported backend")

// SchemaVersion is the layout version written to new stores.
const SchemaVersion uint64 = 1

// Options selects and configures the backend.
type Options struct {
	Backend    string // leveldb (default) or pebble
	Dir        string
	InMemory   bool
	SyncWrites bool
	OpenRetry  retry.Config
}

// Engine owns a kv.Backend and exposes table-level access to it.
type Engine struct {
	backend kv.Backend
	logger  *zap.Logger
	metrics *metrics.StoreMetrics

	mu     sync.RWMutex
	closed bool
}

// Open opens the backend described by opts and prepares the schema.
func Open(ctx context.Context, logger *zap.Logger, opts Options) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !opts.InMemory && opts.Dir == "" {
		return nil, fmt.Errorf("%w: data directory required for on-disk store", ErrStorageUnavailable)
	}

	openRetry := opts.OpenRetry
	if openRetry.Retryable == nil {
		// only a held lock or transient I/O is worth waiting for
		openRetry.Retryable = func(err error) bool { return !errors.Is(err, errUnsupportedBackend) }
	}

	var backend kv.Backend
	err := retry.WithBackoff(ctx, openRetry, logger, "open_"+backendName(opts.Backend), func() error {
		b, openErr := openBackend(logger, opts)
		if openErr != nil {
			return openErr
		}
		backend = b
		return nil
	})
	if err != nil {
		metrics.Store().ObserveStorageError("open")
		return nil, fmt.Errorf("%w: open %s store: %v", ErrStorageUnavailable, backendName(opts.Backend), err)
	}

	e, err := New(ctx, logger, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	logger.Info("Storage engine opened",
		zap.String("backend", backend.Name()),
		zap.String("dir", opts.Dir),
		zap.Bool("in_memory", opts.InMemory),
		zap.Bool("sync_writes", opts.SyncWrites),
	)
	return e, nil
}

func backendName(name string) string {
	if name == "" {
		return leveldb.Name
	}
	return name
}

func openBackend(logger *zap.Logger, opts Options) (kv.Backend, error) {
	switch backendName(opts.Backend) {
	case leveldb.Name:
		if opts.InMemory {
			return leveldb.OpenMemory()
		}
		return leveldb.Open(opts.Dir, leveldb.Options{SyncWrites: opts.SyncWrites})
	case pebble.Name:
		po := pebble.Options{SyncWrites: opts.SyncWrites, Logger: logger}
		if opts.InMemory {
			return pebble.OpenMemory(po)
		}
		return pebble.Open(opts.Dir, po)
	default:
		return nil, fmt.Errorf("%w %q", errUnsupportedBackend, opts.Backend)
	}
}

// New wraps an already opened backend and checks the schema version.
func New(ctx context.Context, logger *zap.Logger, backend kv.Backend) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		backend: backend,
		logger:  logger.With(zap.String("component", "engine"), zap.String("backend", backend.Name())),
		metrics: metrics.Store(),
	}
	if err := e.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) ensureSchema(ctx context.Context) error {
	return e.Transact(ctx, func(tx *Tx) error {
		var version uint64
		found, err := tx.getMeta("schema_version", &version)
		if err != nil {
			return err
		}
		if !found {
			e.logger.Debug("Initializing schema", zap.Uint64("version", SchemaVersion))
			return tx.putMeta("schema_version", SchemaVersion)
		}
		if version > SchemaVersion {
			return fmt.Errorf("%w: store has version %d, this build supports %d", ErrSchemaVersion, version, SchemaVersion)
		}
		return nil
	})
}

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// Close releases the backend. Operations issued afterwards fail with ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.backend.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrStorageUnavailable, err)
	}
	e.logger.Info("Storage engine closed")
	return nil
}

// View runs fn against a consistent snapshot. fn must not retain the Tx.
func (e *Engine) View(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}

	started := time.Now()
	var fnErr error
	err := e.backend.View(func(r kv.Reader) error {
		fnErr = fn(&Tx{r: r, metrics: e.metrics})
		return fnErr
	})
	if fnErr == nil && err != nil {
		e.metrics.ObserveStorageError("view")
		err = fmt.Errorf("%w: snapshot: %v", ErrStorageUnavailable, err)
	}
	e.metrics.ObserveTransact("view", started, err)
	return err
}

// Transact runs fn as one atomic read-modify-write transaction. Transactions are serialized: reads
// inside fn observe every previously committed transaction and nothing commits concurrently.
// If fn returns an error, or ctx is cancelled before commit, no write made by fn is applied.
func (e *Engine) Transact(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}

	started := time.Now()
	var fnErr error
	err := e.backend.Update(func(w kv.Writer) error {
		fnErr = fn(&Tx{r: w, w: w, metrics: e.metrics})
		if fnErr == nil {
			// abandon uncommitted work when the caller has gone away
			fnErr = ctx.Err()
		}
		return fnErr
	})
	if fnErr == nil && err != nil {
		e.metrics.ObserveStorageError("commit")
		err = fmt.Errorf("%w: commit: %v", ErrStorageUnavailable, err)
	}
	e.metrics.ObserveTransact("update", started, err)
	return err
}

// Get loads the record stored under pk into dst. It reports false when the key is absent.
func (e *Engine) Get(ctx context.Context, table string, pk []byte, dst any) (found bool, err error) {
	err = e.View(ctx, func(tx *Tx) error {
		found, err = tx.Get(table, pk, dst)
		return err
	})
	return found, err
}

// Put upserts rec in its own transaction.
func (e *Engine) Put(ctx context.Context, table string, rec Record) error {
	return e.Transact(ctx, func(tx *Tx) error {
		return tx.Put(table, rec)
	})
}

// Query runs q against a snapshot and calls fn with every matching raw record.
func (e *Engine) Query(ctx context.Context, table string, q Query, fn func(raw []byte) (bool, error)) error {
	return e.View(ctx, func(tx *Tx) error {
		return tx.Query(table, q, fn)
	})
}
