package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEntityConstants verifies that all entity constants are properly defined.
func TestEntityConstants(t *testing.T) {
	tests := []struct {
		name          string
		entity        Entity
		expectedTable string
		indexes       []Index
	}{
		{"TrackedAccounts entity", TrackedAccounts, "tracked_accounts", []Index{TrackedAccountsByOrder, TrackedAccountsByAddress}},
		{"Networks entity", Networks, "networks", []Index{}},
		{"Balances entity", Balances, "balances", []Index{BalancesByAccountAsset}},
		{"Blocks entity", Blocks, "blocks", []Index{BlocksByHeight}},
		{"LatestBlocks entity", LatestBlocks, "latest_blocks", []Index{}},
		{"Transactions entity", Transactions, "txs", []Index{TransactionsByStatus}},
		{"TransferLookups entity", TransferLookups, "transfer_lookups", []Index{TransferLookupsByAccount}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedTable, tt.entity.TableName())
			assert.Equal(t, tt.expectedTable, tt.entity.String())
			assert.True(t, tt.entity.IsValid())
			assert.Equal(t, tt.indexes, tt.entity.Indexes())
			for _, idx := range tt.indexes {
				assert.True(t, tt.entity.HasIndex(idx))
			}
		})
	}
}

func TestAllIsACopy(t *testing.T) {
	all := All()
	require.Len(t, all, 7)
	all[0] = "mutated"
	assert.Equal(t, TrackedAccounts, All()[0])
}

func TestFromString(t *testing.T) {
	e, err := FromString("txs")
	require.NoError(t, err)
	assert.Equal(t, Transactions, e)

	_, err = FromString("transactions_raw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid entities")
}

func TestEntityJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Table Entity `json:"table"`
	}{Blocks})
	require.NoError(t, err)
	assert.JSONEq(t, `{"table":"blocks"}`, string(data))

	var decoded struct {
		Table Entity `json:"table"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Blocks, decoded.Table)

	err = json.Unmarshal([]byte(`{"table":"nope"}`), &decoded)
	assert.Error(t, err)
}

func TestHasIndexRejectsForeignIndex(t *testing.T) {
	assert.False(t, Blocks.HasIndex(TransactionsByStatus))
}
