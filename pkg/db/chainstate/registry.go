package chainstate

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/canopy-network/chaincache/pkg/db/engine"
	"github.com/canopy-network/chaincache/pkg/db/entities"
	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
	"github.com/canopy-network/chaincache/pkg/utils"
)

func (s *Store) validateAccount(account models.TrackedAccount) error {
	if err := account.Validate(); err != nil {
		return invalid("tracked account", err)
	}
	if account.Network.IsEVM() && !utils.IsEVMAddress(account.Address) {
		return invalid("tracked account", errNotEVMAddress(account.Address))
	}
	return nil
}

// AddAccountToTrack starts tracking account and returns the tracked accounts in insertion order.
// Adding an account that is already tracked changes nothing.
func (s *Store) AddAccountToTrack(ctx context.Context, account models.TrackedAccount) ([]models.TrackedAccount, error) {
	if err := s.validateAccount(account); err != nil {
		return nil, err
	}

	table := entities.TrackedAccounts.TableName()
	var accounts []models.TrackedAccount
	outcome := OutcomeUnchanged
	err := s.engine.Transact(ctx, func(tx *engine.Tx) error {
		if err := s.ensureNetwork(tx, account.Network); err != nil {
			return err
		}
		exists, err := tx.Has(table, accountTuple(account))
		if err != nil {
			return err
		}
		if !exists {
			seq, err := tx.NextSequence(table)
			if err != nil {
				return err
			}
			if err := tx.Put(table, trackedAccountRow{Account: account, Seq: seq}); err != nil {
				return err
			}
			outcome = OutcomeInserted
		}
		accounts, err = listTracked(tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveWrite(table, outcome.String())
	if outcome == OutcomeInserted {
		s.logger.Info("Tracking account", zap.String("account", account.String()))
	}
	return accounts, nil
}

// RemoveAccountToTrack stops tracking account and reports whether it was tracked. Balances,
// transactions and transfer cursors recorded for the account are kept, so tracking it again
// resumes history sync where it stopped.
func (s *Store) RemoveAccountToTrack(ctx context.Context, account models.TrackedAccount) (bool, error) {
	if err := account.Validate(); err != nil {
		return false, invalid("tracked account", err)
	}

	table := entities.TrackedAccounts.TableName()
	var removed bool
	err := s.engine.Transact(ctx, func(tx *engine.Tx) error {
		var err error
		removed, err = tx.Delete(table, accountTuple(account))
		return err
	})
	if err != nil {
		return false, err
	}

	if removed {
		s.metrics.ObserveWrite(table, "deleted")
		s.logger.Info("Stopped tracking account", zap.String("account", account.String()))
	}
	return removed, nil
}

// RemoveAddressToTrack stops tracking address on every network and returns how many tracked
// accounts were removed. Like RemoveAccountToTrack it does not touch historical data.
func (s *Store) RemoveAddressToTrack(ctx context.Context, address string) (int, error) {
	table := entities.TrackedAccounts.TableName()
	candidates := utils.Dedup([]string{utils.NormalizeEVMAddress(address), strings.TrimSpace(address)})

	removed := 0
	err := s.engine.Transact(ctx, func(tx *engine.Tx) error {
		removed = 0
		var matches []models.TrackedAccount
		for _, candidate := range candidates {
			rows, err := engine.Collect[trackedAccountRow](tx, table, engine.Query{
				Index:  index(entities.TrackedAccountsByAddress),
				Prefix: engine.Tuple(engine.Str(candidate)),
			})
			if err != nil {
				return err
			}
			for _, row := range rows {
				if addressKey(row.Account.Network, address) == addressKey(row.Account.Network, row.Account.Address) {
					matches = append(matches, row.Account)
				}
			}
		}
		for _, account := range matches {
			found, err := tx.Delete(table, accountTuple(account))
			if err != nil {
				return err
			}
			if found {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.metrics.ObserveWrite(table, "deleted")
		s.logger.Info("Stopped tracking address", zap.String("address", address), zap.Int("accounts", removed))
	}
	return removed, nil
}

// GetAccountsToTrack returns the tracked accounts in the order they were first added.
func (s *Store) GetAccountsToTrack(ctx context.Context) ([]models.TrackedAccount, error) {
	var accounts []models.TrackedAccount
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		var err error
		accounts, err = listTracked(tx)
		return err
	})
	return accounts, err
}

// GetChainIDsToTrack returns the keys (Family/ChainID) of the distinct networks among tracked
// accounts, in the order their first account was added. Chain ids alone are not unique across
// families.
func (s *Store) GetChainIDsToTrack(ctx context.Context) ([]string, error) {
	networks, err := s.GetNetworksToTrack(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(networks))
	for i, network := range networks {
		keys[i] = network.Key()
	}
	return keys, nil
}

// GetNetworksToTrack returns the distinct networks among tracked accounts, in the order their
// first account was added.
func (s *Store) GetNetworksToTrack(ctx context.Context) ([]models.NetworkDescriptor, error) {
	accounts, err := s.GetAccountsToTrack(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	networks := make([]models.NetworkDescriptor, 0)
	for _, account := range accounts {
		key := account.Network.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		networks = append(networks, account.Network)
	}
	return networks, nil
}

func listTracked(tx *engine.Tx) ([]models.TrackedAccount, error) {
	rows, err := engine.Collect[trackedAccountRow](tx, entities.TrackedAccounts.TableName(), engine.Query{
		Index: index(entities.TrackedAccountsByOrder),
	})
	if err != nil {
		return nil, err
	}
	accounts := make([]models.TrackedAccount, len(rows))
	for i, row := range rows {
		accounts[i] = row.Account
	}
	return accounts, nil
}
