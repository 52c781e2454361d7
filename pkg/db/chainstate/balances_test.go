package chainstate

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
)

func balanceAt(observedAt int64, amount int64, height *uint64) models.AccountBalance {
	return models.AccountBalance{
		Account:     account1,
		Asset:       eth,
		Amount:      big.NewInt(amount),
		ObservedAt:  observedAt,
		BlockHeight: height,
		Source:      "node",
	}
}

func TestLatestBalanceIgnoresInsertionOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		for _, ts := range []int64{5, 3, 8, 1} {
			outcome, err := s.AddBalance(ctx, balanceAt(ts, ts*100, nil))
			require.NoError(t, err)
			assert.Equal(t, OutcomeInserted, outcome)
		}

		latest, err := s.GetLatestAccountBalance(ctx, account1, eth)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, int64(8), latest.ObservedAt)
		assert.Equal(t, int64(800), latest.Amount.Int64())

		history, err := s.GetAccountBalanceHistory(ctx, account1, eth, 0)
		require.NoError(t, err)
		var stamps []int64
		for _, b := range history {
			stamps = append(stamps, b.ObservedAt)
		}
		assert.Equal(t, []int64{1, 3, 5, 8}, stamps)

		recent, err := s.GetAccountBalanceHistory(ctx, account1, eth, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, int64(5), recent[0].ObservedAt)
		assert.Equal(t, int64(8), recent[1].ObservedAt)
	})
}

func TestLatestBalanceTieBreaks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		for _, b := range []models.AccountBalance{
			balanceAt(10, 1, u64(12)),
			balanceAt(10, 2, nil),
			balanceAt(10, 3, u64(9)),
		} {
			_, err := s.AddBalance(ctx, b)
			require.NoError(t, err)
		}

		latest, err := s.GetLatestAccountBalance(ctx, account1, eth)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, int64(1), latest.Amount.Int64(), "greatest block height wins a timestamp tie")

		_, err = s.AddBalance(ctx, balanceAt(10, 4, u64(12)))
		require.NoError(t, err)

		latest, err = s.GetLatestAccountBalance(ctx, account1, eth)
		require.NoError(t, err)
		assert.Equal(t, int64(4), latest.Amount.Int64(), "last insert wins a full tie")
	})
}

func TestBalanceRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		b := balanceAt(1_700_000_000_123, 0, u64(19_000_000))
		b.Amount, _ = new(big.Int).SetString("123456789012345678901234567890", 10)

		_, err := s.AddBalance(ctx, b)
		require.NoError(t, err)

		all, err := s.ListBalances(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.AccountBalance{b}, all)

		latest, err := s.GetLatestAccountBalance(ctx, account1, eth)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, b, *latest)
	})
}

func TestBalancesAreScopedByAsset(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		_, err := s.AddBalance(ctx, balanceAt(1, 7, nil))
		require.NoError(t, err)
		token := balanceAt(2, 9, nil)
		token.Asset = usdcETH
		_, err = s.AddBalance(ctx, token)
		require.NoError(t, err)

		latest, err := s.GetLatestAccountBalance(ctx, account1, eth)
		require.NoError(t, err)
		assert.Equal(t, int64(7), latest.Amount.Int64())

		latest, err = s.GetLatestAccountBalance(ctx, account1, usdcETH)
		require.NoError(t, err)
		assert.Equal(t, int64(9), latest.Amount.Int64())

		missing, err := s.GetLatestAccountBalance(ctx, account2, eth)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestConcurrentBalanceInserts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		const writers = 20

		var wg sync.WaitGroup
		for i := 1; i <= writers; i++ {
			wg.Add(1)
			go func(ts int64) {
				defer wg.Done()
				_, err := s.AddBalance(ctx, balanceAt(ts, ts, nil))
				assert.NoError(t, err)
			}(int64(i))
		}
		wg.Wait()

		all, err := s.ListBalances(ctx)
		require.NoError(t, err)
		assert.Len(t, all, writers)

		latest, err := s.GetLatestAccountBalance(ctx, account1, eth)
		require.NoError(t, err)
		assert.Equal(t, int64(writers), latest.ObservedAt)
	})
}
