package chainstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
)

func block(network models.NetworkDescriptor, height uint64) models.Block {
	return models.Block{
		Network:    network,
		Hash:       fmt.Sprintf("0x%064x", height),
		Height:     height,
		ParentHash: fmt.Sprintf("0x%064x", height-1),
		Timestamp:  1_700_000_000 + int64(height)*12,
		Payload:    json.RawMessage(`{"miner":"0x0000000000000000000000000000000000000001"}`),
	}
}

func TestAddBlockIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		b := block(models.Ethereum, 100)

		outcome, err := s.AddBlock(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, OutcomeInserted, outcome)

		outcome, err = s.AddBlock(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnchanged, outcome)

		conflicting := b
		conflicting.Height = 101
		outcome, err = s.AddBlock(ctx, conflicting)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnchanged, outcome)

		blocks, err := s.ListBlocks(ctx, models.Ethereum)
		require.NoError(t, err)
		assert.Equal(t, []models.Block{b}, blocks)

		got, err := s.GetBlock(ctx, models.Ethereum, b.Hash)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, b, *got)
	})
}

func TestBlockHashIsCaseInsensitiveOnEVM(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		_, err := s.AddBlock(ctx, models.Block{Network: models.Ethereum, Hash: "0xABCDEF", Height: 1})
		require.NoError(t, err)
		outcome, err := s.AddBlock(ctx, models.Block{Network: models.Ethereum, Hash: "0xabcdef", Height: 1})
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnchanged, outcome)

		got, err := s.GetBlock(ctx, models.Ethereum, "0xAbCdEf")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "0xABCDEF", got.Hash)

		missing, err := s.GetBlock(ctx, models.Polygon, "0xabcdef")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestLatestBlockOnlyMovesUp(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		latest, err := s.GetLatestBlock(ctx, models.Ethereum)
		require.NoError(t, err)
		assert.Nil(t, latest)

		for _, h := range []uint64{10, 12, 11} {
			_, err := s.AddBlock(ctx, block(models.Ethereum, h))
			require.NoError(t, err)
		}
		_, err = s.AddBlock(ctx, block(models.Polygon, 5))
		require.NoError(t, err)

		latest, err = s.GetLatestBlock(ctx, models.Ethereum)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, uint64(12), latest.Height)

		latest, err = s.GetLatestBlock(ctx, models.Polygon)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, uint64(5), latest.Height)

		blocks, err := s.ListBlocks(ctx, models.Ethereum)
		require.NoError(t, err)
		var heights []uint64
		for _, b := range blocks {
			heights = append(heights, b.Height)
		}
		assert.Equal(t, []uint64{10, 11, 12}, heights)

		// a fresh store on the same engine reads the persisted pointer
		fresh := New(s.Engine(), zap.NewNop())
		latest, err = fresh.GetLatestBlock(ctx, models.Ethereum)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, uint64(12), latest.Height)
	})
}

func TestConcurrentAddBlock(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		const height = 32

		var wg sync.WaitGroup
		for h := uint64(1); h <= height; h++ {
			for copies := 0; copies < 2; copies++ {
				wg.Add(1)
				go func(h uint64) {
					defer wg.Done()
					_, err := s.AddBlock(ctx, block(models.Ethereum, h))
					assert.NoError(t, err)
				}(h)
			}
		}
		wg.Wait()

		blocks, err := s.ListBlocks(ctx, models.Ethereum)
		require.NoError(t, err)
		assert.Len(t, blocks, height)

		latest, err := s.GetLatestBlock(ctx, models.Ethereum)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, uint64(height), latest.Height)
	})
}
