// Package chainstate is the persistent chain-state cache of the wallet: tracked accounts, balance
// history, blocks, transactions and transfer-history sync cursors for any number of networks,
// stored in one storage engine.
//
// Inbound mutations (AddBlock, AddOrUpdateTransaction, AddBalance,
// RecordAccountAssetTransferLookup and the registry operations) each run as one engine
// transaction, so concurrent writers to the same key are serialized and cross-table updates (a
// block and its network's latest-block pointer) commit together.
//
// Updates that would move state backward are not errors: they are logged, counted and reported
// as OutcomeIgnored or OutcomeUnchanged with the store left as it was.
package chainstate

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/canopy-network/chaincache/pkg/db/engine"
	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
	"github.com/canopy-network/chaincache/pkg/metrics"
)

// Store is the chain-state cache. It is safe for concurrent use.
type Store struct {
	engine  *engine.Engine
	logger  *zap.Logger
	metrics *metrics.StoreMetrics
	now     func() time.Time

	// latest mirrors the latest_blocks table, keyed by network key.
	latest *xsync.Map[string, blockPointer]
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for FirstSeen and UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens the storage engine described by opts and returns a Store that owns it.
func Open(ctx context.Context, logger *zap.Logger, opts engine.Options, options ...Option) (*Store, error) {
	e, err := engine.Open(ctx, logger, opts)
	if err != nil {
		return nil, err
	}
	return New(e, logger, options...), nil
}

// New returns a Store on top of an opened engine. The Store takes ownership of the engine.
func New(e *engine.Engine, logger *zap.Logger, options ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		engine:  e,
		logger:  logger.With(zap.String("component", "chainstate")),
		metrics: metrics.Store(),
		now:     time.Now,
		latest:  xsync.NewMap[string, blockPointer](),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Close closes the underlying engine.
func (s *Store) Close() error {
	return s.engine.Close()
}

// Engine exposes the storage engine for raw table access.
func (s *Store) Engine() *engine.Engine {
	return s.engine
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func invalid(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", engine.ErrInvalidRecord, what, err)
}

func errNotEVMAddress(address string) error {
	return fmt.Errorf("%q is not a hex address", address)
}

func errUnknownStatus(status models.TxStatus) error {
	return fmt.Errorf("unknown transaction status %d", status)
}
