package chainstate

import (
	"bytes"
	"context"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/canopy-network/chaincache/pkg/db/engine"
	"github.com/canopy-network/chaincache/pkg/db/entities"
	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
)

// AddBlock stores a block once per (network, hash). Re-observing a stored block is a no-op even if
// the new copy differs, since a block hash never changes meaning. The network's latest-block
// pointer moves in the same transaction when the block is higher than the current one.
func (s *Store) AddBlock(ctx context.Context, block models.Block) (Outcome, error) {
	if err := block.Validate(); err != nil {
		return 0, invalid("block", err)
	}

	blocks := entities.Blocks.TableName()
	pointers := entities.LatestBlocks.TableName()
	var (
		outcome Outcome
		stored  *blockRow
		moved   *blockPointer
	)
	err := s.engine.Transact(ctx, func(tx *engine.Tx) error {
		outcome, stored, moved = 0, nil, nil
		if err := s.ensureNetwork(tx, block.Network); err != nil {
			return err
		}
		var err error
		stored, err = engine.Load[blockRow](tx, blocks, recordTuple(block.Network, block.Hash))
		if err != nil {
			return err
		}
		if stored != nil {
			outcome = OutcomeUnchanged
			return nil
		}
		if err := tx.Put(blocks, blockRow{Block: block}); err != nil {
			return err
		}
		outcome = OutcomeInserted

		current, err := engine.Load[blockPointer](tx, pointers, networkTuple(block.Network))
		if err != nil {
			return err
		}
		if current != nil && block.Height <= current.Height {
			return nil
		}
		next := blockPointer{Network: block.Network, Hash: block.Hash, Height: block.Height}
		if err := tx.Put(pointers, next); err != nil {
			return err
		}
		moved = &next
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.ObserveWrite(blocks, outcome.String())
	if stored != nil && !sameBlock(stored.Block, block) {
		s.metrics.ObserveStale(blocks, "conflicting_copy")
		s.logger.Warn("Ignoring conflicting copy of stored block",
			zap.String("network", block.Network.Key()),
			zap.String("hash", block.Hash),
			zap.Uint64("stored_height", stored.Height),
			zap.Uint64("height", block.Height))
	}
	if moved != nil {
		s.metrics.ObserveWrite(pointers, OutcomeUpdated.String())
		s.cacheLatest(*moved)
	}
	return outcome, nil
}

func sameBlock(a, b models.Block) bool {
	return a.Height == b.Height &&
		hashKey(a.Network, a.ParentHash) == hashKey(b.Network, b.ParentHash) &&
		a.Timestamp == b.Timestamp &&
		(len(b.Payload) == 0 || bytes.Equal(a.Payload, b.Payload))
}

// cacheLatest keeps the in-memory pointer at the highest block seen. Commits of different blocks
// may finish out of order, so a lower pointer never replaces a higher one.
func (s *Store) cacheLatest(p blockPointer) {
	s.latest.Compute(p.Network.Key(), func(old blockPointer, loaded bool) (blockPointer, xsync.ComputeOp) {
		if loaded && old.Height >= p.Height {
			return old, xsync.CancelOp
		}
		return p, xsync.UpdateOp
	})
}

// GetBlock returns the block stored under (network, hash), or nil.
func (s *Store) GetBlock(ctx context.Context, network models.NetworkDescriptor, hash string) (*models.Block, error) {
	var out *models.Block
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		row, err := engine.Load[blockRow](tx, entities.Blocks.TableName(), recordTuple(network, hash))
		if err != nil || row == nil {
			return err
		}
		out = &row.Block
		return nil
	})
	return out, err
}

// GetLatestBlock returns the highest block stored for network, or nil when none was stored.
func (s *Store) GetLatestBlock(ctx context.Context, network models.NetworkDescriptor) (*models.Block, error) {
	// The cache is filled after commit, so a snapshot opened after reading it contains the block.
	pointer, cached := s.latest.Load(network.Key())

	var out *models.Block
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		if !cached {
			loaded, err := engine.Load[blockPointer](tx, entities.LatestBlocks.TableName(), networkTuple(network))
			if err != nil || loaded == nil {
				return err
			}
			pointer = *loaded
		}
		row, err := engine.Load[blockRow](tx, entities.Blocks.TableName(), recordTuple(network, pointer.Hash))
		if err != nil || row == nil {
			return err
		}
		out = &row.Block
		return nil
	})
	if err == nil && out != nil && !cached {
		s.cacheLatest(blockPointer{Network: out.Network, Hash: out.Hash, Height: out.Height})
	}
	return out, err
}

// ListBlocks returns the blocks of network ordered by height.
func (s *Store) ListBlocks(ctx context.Context, network models.NetworkDescriptor) ([]models.Block, error) {
	var out []models.Block
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		rows, err := engine.Collect[blockRow](tx, entities.Blocks.TableName(), engine.Query{
			Index:  index(entities.BlocksByHeight),
			Prefix: networkTuple(network),
		})
		if err != nil {
			return err
		}
		out = make([]models.Block, len(rows))
		for i, row := range rows {
			out[i] = row.Block
		}
		return nil
	})
	return out, err
}
