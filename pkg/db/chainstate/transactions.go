package chainstate

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"

	"go.uber.org/zap"

	"github.com/canopy-network/chaincache/pkg/db/engine"
	"github.com/canopy-network/chaincache/pkg/db/entities"
	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
)

// AddOrUpdateTransaction upserts a transaction keyed by (network, hash).
//
// Status only moves forward: pending may become confirmed or failed, and a terminal status is
// never replaced. Other fields present in the incoming record overwrite the stored ones, except
// when the record tries to regress the status; then they apply only if its ObservedAt is later
// than the stored one. FirstSeen is set on insert and kept afterwards.
func (s *Store) AddOrUpdateTransaction(ctx context.Context, txn models.Transaction) (Outcome, error) {
	if err := txn.Validate(); err != nil {
		return 0, invalid("transaction", err)
	}
	if txn.Value != nil {
		txn.Value = new(big.Int).Set(txn.Value)
	}

	table := entities.Transactions.TableName()
	var (
		outcome    Outcome
		regression bool
		stored     models.TxStatus
	)
	err := s.engine.Transact(ctx, func(tx *engine.Tx) error {
		if err := s.ensureNetwork(tx, txn.Network); err != nil {
			return err
		}
		existing, err := engine.Load[txRow](tx, table, recordTuple(txn.Network, txn.Hash))
		if err != nil {
			return err
		}

		if existing == nil {
			now := s.nowMillis()
			inserted := txn
			if inserted.FirstSeen == 0 {
				inserted.FirstSeen = now
			}
			if inserted.ObservedAt == 0 {
				inserted.ObservedAt = now
			}
			outcome, regression = OutcomeInserted, false
			return tx.Put(table, txRow{Transaction: inserted})
		}

		stored = existing.Status
		var merged models.Transaction
		merged, regression = mergeTransaction(existing.Transaction, txn)
		same, err := sameTransaction(existing.Transaction, merged)
		if err != nil {
			return err
		}
		switch {
		case !same:
			outcome = OutcomeUpdated
			return tx.Put(table, txRow{Transaction: merged})
		case regression:
			outcome = OutcomeIgnored
		default:
			outcome = OutcomeUnchanged
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.ObserveWrite(table, outcome.String())
	if regression {
		s.metrics.ObserveStale(table, "status_regression")
		s.logger.Debug("Ignoring status regression",
			zap.String("network", txn.Network.Key()),
			zap.String("hash", txn.Hash),
			zap.Stringer("stored", stored),
			zap.Stringer("incoming", txn.Status),
			zap.Stringer("outcome", outcome))
	}
	return outcome, nil
}

// mergeTransaction applies incoming to stored and reports whether incoming tried to move the
// status backward.
func mergeTransaction(stored, incoming models.Transaction) (models.Transaction, bool) {
	merged := stored
	regression := false
	if incoming.Status != stored.Status {
		if stored.Status.CanTransitionTo(incoming.Status) {
			merged.Status = incoming.Status
		} else {
			regression = true
		}
	}
	if regression && incoming.ObservedAt <= stored.ObservedAt {
		return merged, true
	}

	if incoming.From != "" {
		merged.From = incoming.From
	}
	if incoming.To != "" {
		merged.To = incoming.To
	}
	if incoming.Value != nil {
		merged.Value = incoming.Value
	}
	if incoming.Nonce != nil {
		merged.Nonce = incoming.Nonce
	}
	if incoming.BlockHash != "" {
		merged.BlockHash = incoming.BlockHash
	}
	if incoming.BlockHeight != nil {
		merged.BlockHeight = incoming.BlockHeight
	}
	if incoming.Source != "" {
		merged.Source = incoming.Source
	}
	if len(incoming.Payload) > 0 {
		merged.Payload = incoming.Payload
	}
	if incoming.ObservedAt > merged.ObservedAt {
		merged.ObservedAt = incoming.ObservedAt
	}
	return merged, regression
}

func sameTransaction(a, b models.Transaction) (bool, error) {
	ra, err := json.Marshal(a)
	if err != nil {
		return false, invalid("transaction", err)
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false, invalid("transaction", err)
	}
	return bytes.Equal(ra, rb), nil
}

// GetTransaction returns the transaction stored under (network, hash), or nil.
func (s *Store) GetTransaction(ctx context.Context, network models.NetworkDescriptor, hash string) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		row, err := engine.Load[txRow](tx, entities.Transactions.TableName(), recordTuple(network, hash))
		if err != nil || row == nil {
			return err
		}
		out = &row.Transaction
		return nil
	})
	return out, err
}

// GetAllSavedTransactionHashes returns the stored transaction hashes grouped by network key.
func (s *Store) GetAllSavedTransactionHashes(ctx context.Context) (map[string][]string, error) {
	var out map[string][]string
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		rows, err := engine.Collect[txRow](tx, entities.Transactions.TableName(), engine.Query{})
		if err != nil {
			return err
		}
		out = make(map[string][]string)
		for _, row := range rows {
			key := row.Network.Key()
			out[key] = append(out[key], row.Hash)
		}
		return nil
	})
	return out, err
}

// GetSavedTransactionHashes returns the stored transaction hashes of one network.
func (s *Store) GetSavedTransactionHashes(ctx context.Context, network models.NetworkDescriptor) ([]string, error) {
	var out []string
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		rows, err := engine.Collect[txRow](tx, entities.Transactions.TableName(), engine.Query{
			Prefix: networkTuple(network),
		})
		if err != nil {
			return err
		}
		out = make([]string, len(rows))
		for i, row := range rows {
			out[i] = row.Hash
		}
		return nil
	})
	return out, err
}

// GetNetworkPendingTransactions returns the pending transactions of network, oldest first.
func (s *Store) GetNetworkPendingTransactions(ctx context.Context, network models.NetworkDescriptor) ([]models.Transaction, error) {
	return s.transactionsByStatus(ctx, network, models.TxStatusPending)
}

// GetNetworkTransactionsByStatus returns the transactions of network in status, oldest first.
func (s *Store) GetNetworkTransactionsByStatus(ctx context.Context, network models.NetworkDescriptor, status models.TxStatus) ([]models.Transaction, error) {
	if !status.IsValid() {
		return nil, invalid("transaction status", errUnknownStatus(status))
	}
	return s.transactionsByStatus(ctx, network, status)
}

func (s *Store) transactionsByStatus(ctx context.Context, network models.NetworkDescriptor, status models.TxStatus) ([]models.Transaction, error) {
	var out []models.Transaction
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		rows, err := engine.Collect[txRow](tx, entities.Transactions.TableName(), engine.Query{
			Index:  index(entities.TransactionsByStatus),
			Prefix: engine.Tuple(engine.Str(network.Key()), engine.Str(status.String())),
		})
		if err != nil {
			return err
		}
		out = make([]models.Transaction, len(rows))
		for i, row := range rows {
			out[i] = row.Transaction
		}
		return nil
	})
	return out, err
}
