package chainstate

import (
	"context"

	"go.uber.org/zap"

	"github.com/canopy-network/chaincache/pkg/db/engine"
	"github.com/canopy-network/chaincache/pkg/db/entities"
	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
)

// RecordAccountAssetTransferLookup widens the transfer-history cursor of (account, asset) to cover
// observed, the range a collector has just fetched. The cursor never narrows: a range that is
// already covered leaves it unchanged.
func (s *Store) RecordAccountAssetTransferLookup(ctx context.Context, account models.TrackedAccount, asset models.AssetDescriptor, observed models.LookupRange) (Outcome, error) {
	if err := s.validateAccount(account); err != nil {
		return 0, err
	}
	if err := asset.Validate(); err != nil {
		return 0, invalid("transfer lookup", err)
	}
	if err := observed.Validate(); err != nil {
		return 0, invalid("transfer lookup", err)
	}

	table := entities.TransferLookups.TableName()
	var (
		outcome Outcome
		current models.LookupRange
	)
	err := s.engine.Transact(ctx, func(tx *engine.Tx) error {
		if err := s.ensureNetwork(tx, account.Network); err != nil {
			return err
		}
		stored, err := engine.Load[lookupRow](tx, table, accountAssetTuple(account, asset))
		if err != nil {
			return err
		}

		if stored == nil {
			outcome = OutcomeInserted
			current = observed
			return tx.Put(table, lookupRow{TransferLookup: models.TransferLookup{
				Account:   account,
				Asset:     asset,
				Oldest:    observed.Start,
				Newest:    observed.End,
				Ranges:    1,
				UpdatedAt: s.nowMillis(),
			}})
		}

		current = stored.Range()
		if current.Contains(observed) {
			outcome = OutcomeUnchanged
			return nil
		}
		widened := current.Union(observed)
		next := stored.TransferLookup
		next.Oldest, next.Newest = widened.Start, widened.End
		next.Ranges++
		next.UpdatedAt = s.nowMillis()
		outcome = OutcomeUpdated
		return tx.Put(table, lookupRow{TransferLookup: next})
	})
	if err != nil {
		return 0, err
	}

	s.metrics.ObserveWrite(table, outcome.String())
	if outcome == OutcomeUnchanged {
		s.metrics.ObserveStale(table, "covered")
		s.logger.Debug("Transfer lookup range already covered",
			zap.String("account", account.String()),
			zap.String("asset", assetKey(account.Network, asset)),
			zap.Uint64("start", observed.Start),
			zap.Uint64("end", observed.End),
			zap.Uint64("oldest", current.Start),
			zap.Uint64("newest", current.End))
	}
	return outcome, nil
}

// GetAccountAssetTransferLookup returns the cursor of (account, asset), or nil when no range was
// recorded.
func (s *Store) GetAccountAssetTransferLookup(ctx context.Context, account models.TrackedAccount, asset models.AssetDescriptor) (*models.TransferLookup, error) {
	var out *models.TransferLookup
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		row, err := engine.Load[lookupRow](tx, entities.TransferLookups.TableName(), accountAssetTuple(account, asset))
		if err != nil || row == nil {
			return err
		}
		out = &row.TransferLookup
		return nil
	})
	return out, err
}

// GetOldestAccountAssetTransferLookup returns how far back history of (account, asset) has been
// fetched. ok is false when nothing was recorded.
func (s *Store) GetOldestAccountAssetTransferLookup(ctx context.Context, account models.TrackedAccount, asset models.AssetDescriptor) (position uint64, ok bool, err error) {
	lookup, err := s.GetAccountAssetTransferLookup(ctx, account, asset)
	if err != nil || lookup == nil {
		return 0, false, err
	}
	return lookup.Oldest, true, nil
}

// GetNewestAccountAssetTransferLookup returns how far forward history of (account, asset) has
// been fetched. ok is false when nothing was recorded.
func (s *Store) GetNewestAccountAssetTransferLookup(ctx context.Context, account models.TrackedAccount, asset models.AssetDescriptor) (position uint64, ok bool, err error) {
	lookup, err := s.GetAccountAssetTransferLookup(ctx, account, asset)
	if err != nil || lookup == nil {
		return 0, false, err
	}
	return lookup.Newest, true, nil
}

// GetAccountTransferLookups returns every cursor of account, one per asset.
func (s *Store) GetAccountTransferLookups(ctx context.Context, account models.TrackedAccount) ([]models.TransferLookup, error) {
	var out []models.TransferLookup
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		rows, err := engine.Collect[lookupRow](tx, entities.TransferLookups.TableName(), engine.Query{
			Index:  index(entities.TransferLookupsByAccount),
			Prefix: accountTuple(account),
		})
		if err != nil {
			return err
		}
		out = make([]models.TransferLookup, len(rows))
		for i, row := range rows {
			out[i] = row.TransferLookup
		}
		return nil
	})
	return out, err
}
