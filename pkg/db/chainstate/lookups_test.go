package chainstate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
)

func TestTransferLookupWidensOnly(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		_, ok, err := s.GetOldestAccountAssetTransferLookup(ctx, account1, eth)
		require.NoError(t, err)
		assert.False(t, ok)

		steps := []struct {
			observed       models.LookupRange
			outcome        Outcome
			oldest, newest uint64
		}{
			{models.LookupRange{Start: 100, End: 200}, OutcomeInserted, 100, 200},
			{models.LookupRange{Start: 150, End: 180}, OutcomeUnchanged, 100, 200},
			{models.LookupRange{Start: 180, End: 260}, OutcomeUpdated, 100, 260},
			{models.LookupRange{Start: 40, End: 90}, OutcomeUpdated, 40, 260},
			{models.LookupRange{Start: 40, End: 260}, OutcomeUnchanged, 40, 260},
			{models.LookupRange{Start: 0, End: 0}, OutcomeUpdated, 0, 260},
		}
		for _, step := range steps {
			outcome, err := s.RecordAccountAssetTransferLookup(ctx, account1, eth, step.observed)
			require.NoError(t, err)
			assert.Equal(t, step.outcome, outcome, "range %+v", step.observed)

			oldest, ok, err := s.GetOldestAccountAssetTransferLookup(ctx, account1, eth)
			require.NoError(t, err)
			require.True(t, ok)
			newest, _, err := s.GetNewestAccountAssetTransferLookup(ctx, account1, eth)
			require.NoError(t, err)
			assert.Equal(t, step.oldest, oldest)
			assert.Equal(t, step.newest, newest)
		}

		lookup, err := s.GetAccountAssetTransferLookup(ctx, account1, eth)
		require.NoError(t, err)
		require.NotNil(t, lookup)
		assert.Equal(t, uint64(4), lookup.Ranges)
		assert.NotZero(t, lookup.UpdatedAt)
	})
}

func TestTransferLookupCoversEveryObservedRange(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		ranges := []models.LookupRange{
			{Start: 500, End: 520}, {Start: 300, End: 310}, {Start: 900, End: 950},
			{Start: 510, End: 515}, {Start: 100, End: 101}, {Start: 600, End: 1200},
		}

		var wg sync.WaitGroup
		for _, r := range ranges {
			wg.Add(1)
			go func(r models.LookupRange) {
				defer wg.Done()
				_, err := s.RecordAccountAssetTransferLookup(ctx, account1, usdcETH, r)
				assert.NoError(t, err)
			}(r)
		}
		wg.Wait()

		lookup, err := s.GetAccountAssetTransferLookup(ctx, account1, usdcETH)
		require.NoError(t, err)
		require.NotNil(t, lookup)
		for _, r := range ranges {
			assert.LessOrEqual(t, lookup.Oldest, r.Start)
			assert.GreaterOrEqual(t, lookup.Newest, r.End)
		}
		assert.Equal(t, models.LookupRange{Start: 100, End: 1200}, lookup.Range())
	})
}

func TestAccountTransferLookups(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		_, err := s.RecordAccountAssetTransferLookup(ctx, account1, eth, models.LookupRange{Start: 1, End: 2})
		require.NoError(t, err)
		_, err = s.RecordAccountAssetTransferLookup(ctx, account1, usdcETH, models.LookupRange{Start: 3, End: 4})
		require.NoError(t, err)
		_, err = s.RecordAccountAssetTransferLookup(ctx, account2, eth, models.LookupRange{Start: 5, End: 6})
		require.NoError(t, err)

		lookups, err := s.GetAccountTransferLookups(ctx, account1)
		require.NoError(t, err)
		require.Len(t, lookups, 2)
		for _, l := range lookups {
			assert.Equal(t, account1, l.Account)
		}

		_, ok, err := s.GetNewestAccountAssetTransferLookup(ctx, account2, usdcETH)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
