package chainstate

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
)

func pendingTx(network models.NetworkDescriptor, hash string) models.Transaction {
	return models.Transaction{
		Network: network,
		Hash:    hash,
		Status:  models.TxStatusPending,
		From:    vitalik,
		To:      other,
		Value:   big.NewInt(1_000_000_000),
		Nonce:   u64(7),
		Source:  "local",
	}
}

func TestTransactionStatusOnlyAdvances(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		pending := pendingTx(models.Ethereum, "0xaa")

		outcome, err := s.AddOrUpdateTransaction(ctx, pending)
		require.NoError(t, err)
		assert.Equal(t, OutcomeInserted, outcome)

		confirmed := models.Transaction{
			Network:     models.Ethereum,
			Hash:        "0xaa",
			Status:      models.TxStatusConfirmed,
			BlockHash:   "0xb1",
			BlockHeight: u64(100),
		}
		outcome, err = s.AddOrUpdateTransaction(ctx, confirmed)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUpdated, outcome)

		outcome, err = s.AddOrUpdateTransaction(ctx, pending)
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)

		got, err := s.GetTransaction(ctx, models.Ethereum, "0xaa")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.TxStatusConfirmed, got.Status)
		assert.Equal(t, "0xb1", got.BlockHash)
		assert.Equal(t, uint64(100), *got.BlockHeight)
		assert.Equal(t, vitalik, got.From, "fields absent from an update are kept")

		outcome, err = s.AddOrUpdateTransaction(ctx, models.Transaction{Network: models.Ethereum, Hash: "0xaa", Status: models.TxStatusFailed})
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)

		got, err = s.GetTransaction(ctx, models.Ethereum, "0xaa")
		require.NoError(t, err)
		assert.Equal(t, models.TxStatusConfirmed, got.Status)
	})
}

func TestTransactionMergeKeepsFirstSeen(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		_, err := s.AddOrUpdateTransaction(ctx, pendingTx(models.Ethereum, "0xaa"))
		require.NoError(t, err)
		inserted, err := s.GetTransaction(ctx, models.Ethereum, "0xaa")
		require.NoError(t, err)
		require.NotZero(t, inserted.FirstSeen)
		assert.Equal(t, inserted.FirstSeen, inserted.ObservedAt)

		update := pendingTx(models.Ethereum, "0xaa")
		update.Value = big.NewInt(2_000_000_000)
		update.Payload = json.RawMessage(`{"gas":"21000"}`)
		update.FirstSeen = 1
		outcome, err := s.AddOrUpdateTransaction(ctx, update)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUpdated, outcome)

		got, err := s.GetTransaction(ctx, models.Ethereum, "0xaa")
		require.NoError(t, err)
		assert.Equal(t, inserted.FirstSeen, got.FirstSeen)
		assert.Equal(t, int64(2_000_000_000), got.Value.Int64())
		assert.JSONEq(t, `{"gas":"21000"}`, string(got.Payload))

		outcome, err = s.AddOrUpdateTransaction(ctx, update)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnchanged, outcome)
	})
}

func TestStaleTransactionUpdatesOnlyWhenNewer(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		confirmed := pendingTx(models.Ethereum, "0xaa")
		confirmed.Status = models.TxStatusConfirmed
		confirmed.ObservedAt = 100
		_, err := s.AddOrUpdateTransaction(ctx, confirmed)
		require.NoError(t, err)

		older := pendingTx(models.Ethereum, "0xaa")
		older.ObservedAt = 50
		older.Source = "indexer"
		outcome, err := s.AddOrUpdateTransaction(ctx, older)
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)

		got, err := s.GetTransaction(ctx, models.Ethereum, "0xaa")
		require.NoError(t, err)
		assert.Equal(t, "local", got.Source)

		newer := pendingTx(models.Ethereum, "0xaa")
		newer.ObservedAt = 200
		newer.Source = "indexer"
		outcome, err = s.AddOrUpdateTransaction(ctx, newer)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUpdated, outcome)

		got, err = s.GetTransaction(ctx, models.Ethereum, "0xaa")
		require.NoError(t, err)
		assert.Equal(t, models.TxStatusConfirmed, got.Status)
		assert.Equal(t, "indexer", got.Source)
		assert.Equal(t, int64(200), got.ObservedAt)
	})
}

func TestTransactionUniquenessAndHashes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		for _, tx := range []models.Transaction{
			pendingTx(models.Ethereum, "0x01"),
			pendingTx(models.Ethereum, "0x02"),
			pendingTx(models.Ethereum, "0x01"),
			pendingTx(models.Polygon, "0x01"),
		} {
			_, err := s.AddOrUpdateTransaction(ctx, tx)
			require.NoError(t, err)
		}

		hashes, err := s.GetSavedTransactionHashes(ctx, models.Ethereum)
		require.NoError(t, err)
		assert.Equal(t, []string{"0x01", "0x02"}, hashes)

		all, err := s.GetAllSavedTransactionHashes(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{
			models.Ethereum.Key(): {"0x01", "0x02"},
			models.Polygon.Key():  {"0x01"},
		}, all)

		none, err := s.GetSavedTransactionHashes(ctx, models.Arbitrum)
		require.NoError(t, err)
		assert.Empty(t, none)

		missing, err := s.GetTransaction(ctx, models.Arbitrum, "0x01")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestNetworkPendingTransactions(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		for _, tx := range []models.Transaction{
			pendingTx(models.Ethereum, "0x0b"),
			pendingTx(models.Ethereum, "0x0a"),
			pendingTx(models.Ethereum, "0x0c"),
			pendingTx(models.Polygon, "0x0d"),
		} {
			_, err := s.AddOrUpdateTransaction(ctx, tx)
			require.NoError(t, err)
		}
		_, err := s.AddOrUpdateTransaction(ctx, models.Transaction{Network: models.Ethereum, Hash: "0x0c", Status: models.TxStatusFailed})
		require.NoError(t, err)

		pending, err := s.GetNetworkPendingTransactions(ctx, models.Ethereum)
		require.NoError(t, err)
		var hashes []string
		for _, tx := range pending {
			assert.Equal(t, models.TxStatusPending, tx.Status)
			hashes = append(hashes, tx.Hash)
		}
		assert.Equal(t, []string{"0x0b", "0x0a"}, hashes, "oldest first")

		failed, err := s.GetNetworkTransactionsByStatus(ctx, models.Ethereum, models.TxStatusFailed)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "0x0c", failed[0].Hash)

		_, err = s.GetNetworkTransactionsByStatus(ctx, models.Ethereum, models.TxStatusUnknown)
		assert.Error(t, err)
	})
}

func TestConcurrentTransactionUpserts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		const writers = 16

		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tx := pendingTx(models.Ethereum, "0xaa")
				if i == writers/2 {
					tx.Status = models.TxStatusConfirmed
					tx.BlockHeight = u64(500)
				}
				_, err := s.AddOrUpdateTransaction(ctx, tx)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		hashes, err := s.GetSavedTransactionHashes(ctx, models.Ethereum)
		require.NoError(t, err)
		assert.Equal(t, []string{"0xaa"}, hashes)

		got, err := s.GetTransaction(ctx, models.Ethereum, "0xaa")
		require.NoError(t, err)
		assert.Equal(t, models.TxStatusConfirmed, got.Status)
		assert.Equal(t, uint64(500), *got.BlockHeight)

		pending, err := s.GetNetworkPendingTransactions(ctx, models.Ethereum)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
