package chainstate

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/canopy-network/chaincache/pkg/db/engine"
	"github.com/canopy-network/chaincache/pkg/db/entities"
	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
)

// AddBalance appends an observation to the balance history of (account, asset). History is never
// overwritten: an observation older than the current latest is kept but does not become latest.
func (s *Store) AddBalance(ctx context.Context, balance models.AccountBalance) (Outcome, error) {
	if err := balance.Validate(); err != nil {
		return 0, invalid("balance", err)
	}
	if err := s.validateAccount(balance.Account); err != nil {
		return 0, err
	}
	balance.Amount = new(big.Int).Set(balance.Amount)

	table := entities.Balances.TableName()
	var behind *models.AccountBalance
	err := s.engine.Transact(ctx, func(tx *engine.Tx) error {
		behind = nil
		if err := s.ensureNetwork(tx, balance.Account.Network); err != nil {
			return err
		}
		latest, err := latestBalance(tx, balance.Account, balance.Asset)
		if err != nil {
			return err
		}
		if latest != nil && balanceBefore(balance, latest.Balance) {
			behind = &latest.Balance
		}
		seq, err := tx.NextSequence(table)
		if err != nil {
			return err
		}
		return tx.Put(table, balanceRow{Balance: balance, Seq: seq})
	})
	if err != nil {
		return 0, err
	}

	s.metrics.ObserveWrite(table, OutcomeInserted.String())
	if behind != nil {
		s.metrics.ObserveStale(table, "behind_latest")
		s.logger.Debug("Balance observation is older than latest",
			zap.String("account", balance.Account.String()),
			zap.String("asset", assetKey(balance.Account.Network, balance.Asset)),
			zap.Int64("observed_at", balance.ObservedAt),
			zap.Int64("latest_observed_at", behind.ObservedAt))
	}
	return OutcomeInserted, nil
}

// balanceBefore reports whether a sorts before b in latest-balance order. Insertion order is the
// final tie-break, so a later insert with equal keys is never before.
func balanceBefore(a, b models.AccountBalance) bool {
	if a.ObservedAt != b.ObservedAt {
		return a.ObservedAt < b.ObservedAt
	}
	return heightOrZero(a.BlockHeight) < heightOrZero(b.BlockHeight) ||
		(a.BlockHeight == nil && b.BlockHeight != nil)
}

func heightOrZero(h *uint64) uint64 {
	if h == nil {
		return 0
	}
	return *h
}

// GetLatestAccountBalance returns the balance with the greatest observation time, ties broken by
// block height and then insertion order. It returns nil when no balance was recorded.
func (s *Store) GetLatestAccountBalance(ctx context.Context, account models.TrackedAccount, asset models.AssetDescriptor) (*models.AccountBalance, error) {
	var out *models.AccountBalance
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		row, err := latestBalance(tx, account, asset)
		if err != nil || row == nil {
			return err
		}
		out = &row.Balance
		return nil
	})
	return out, err
}

// GetAccountBalanceHistory returns the observations of (account, asset) from oldest to latest.
// A positive limit keeps only the most recent limit entries.
func (s *Store) GetAccountBalanceHistory(ctx context.Context, account models.TrackedAccount, asset models.AssetDescriptor, limit int) ([]models.AccountBalance, error) {
	var out []models.AccountBalance
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		rows, err := engine.Collect[balanceRow](tx, entities.Balances.TableName(), engine.Query{
			Index:   index(entities.BalancesByAccountAsset),
			Prefix:  accountAssetTuple(account, asset),
			Reverse: true,
			Limit:   limit,
		})
		if err != nil {
			return err
		}
		out = make([]models.AccountBalance, len(rows))
		for i, row := range rows {
			out[len(rows)-1-i] = row.Balance
		}
		return nil
	})
	return out, err
}

// ListBalances returns every stored balance observation, grouped by (account, asset) in
// insertion order.
func (s *Store) ListBalances(ctx context.Context) ([]models.AccountBalance, error) {
	var out []models.AccountBalance
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		rows, err := engine.Collect[balanceRow](tx, entities.Balances.TableName(), engine.Query{})
		if err != nil {
			return err
		}
		out = make([]models.AccountBalance, len(rows))
		for i, row := range rows {
			out[i] = row.Balance
		}
		return nil
	})
	return out, err
}

func latestBalance(tx *engine.Tx, account models.TrackedAccount, asset models.AssetDescriptor) (*balanceRow, error) {
	return engine.First[balanceRow](tx, entities.Balances.TableName(), engine.Query{
		Index:   index(entities.BalancesByAccountAsset),
		Prefix:  accountAssetTuple(account, asset),
		Reverse: true,
	})
}
