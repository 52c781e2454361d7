// Package entities provides type-safe constants for the tables and secondary indices of the
// chain-state cache.
//
// This package is the single source of truth for table names. The storage engine uses them as
// keyspace prefixes, metrics use them as labels, and the inspection CLI accepts them as arguments.
//
// Usage Example:
//
//	entity, err := entities.FromString("blocks")
//	if err != nil {
//	    return fmt.Errorf("invalid entity: %w", err)
//	}
//	for _, idx := range entity.Indexes() {
//	    fmt.Println(idx)
//	}
//
// All functions and methods in this package are safe for concurrent use.
package entities

import (
	"fmt"
	"sort"
	"strings"
)

// Entity represents a logical table (e.g., blocks, txs, balances).
type Entity string

const (
	// TrackedAccounts holds the (address, network) pairs being monitored.
	TrackedAccounts Entity = "tracked_accounts"

	// Networks holds every NetworkDescriptor referenced by a stored record.
	Networks Entity = "networks"

	// Balances is the append-only balance history.
	Balances Entity = "balances"

	// Blocks holds block records keyed by (network, hash).
	Blocks Entity = "blocks"

	// LatestBlocks holds the per-network latest-block pointer.
	LatestBlocks Entity = "latest_blocks"

	// Transactions holds transaction records keyed by (network, hash).
	Transactions Entity = "txs"

	// TransferLookups holds the per-(account, network, asset) sync cursors.
	TransferLookups Entity = "transfer_lookups"
)

// Index names a secondary index of an entity.
type Index string

const (
	// TrackedAccountsByOrder orders tracked accounts by insertion sequence.
	TrackedAccountsByOrder Index = "by_order"
	// TrackedAccountsByAddress groups tracked accounts by normalized address.
	TrackedAccountsByAddress Index = "by_address"

	// BalancesByAccountAsset orders balance history per (network, address, asset) by
	// (observedAt, blockHeight, sequence).
	BalancesByAccountAsset Index = "by_account_asset"

	// BlocksByHeight orders blocks per network by height.
	BlocksByHeight Index = "by_height"

	// TransactionsByStatus groups transactions per (network, status).
	TransactionsByStatus Index = "by_status"

	// TransferLookupsByAccount groups cursors per (network, address).
	TransferLookupsByAccount Index = "by_account"
)

var allEntities = []Entity{
	TrackedAccounts,
	Networks,
	Balances,
	Blocks,
	LatestBlocks,
	Transactions,
	TransferLookups,
}

var entityIndexes = map[Entity][]Index{
	TrackedAccounts: {TrackedAccountsByOrder, TrackedAccountsByAddress},
	Balances:        {BalancesByAccountAsset},
	Blocks:          {BlocksByHeight},
	Transactions:    {TransactionsByStatus},
	TransferLookups: {TransferLookupsByAccount},
}

var entitySet map[Entity]bool

func init() {
	entitySet = make(map[Entity]bool, len(allEntities))
	for _, e := range allEntities {
		if e == "" {
			panic("entities: empty entity name detected in allEntities")
		}
		if strings.ContainsAny(string(e), " \x00") {
			panic(fmt.Sprintf("entities: entity name %q contains a separator", e))
		}
		entitySet[e] = true
	}
	for e := range entityIndexes {
		if !entitySet[e] {
			panic(fmt.Sprintf("entities: indexes declared for unknown entity %q", e))
		}
	}
}

// String returns the entity name.
func (e Entity) String() string {
	return string(e)
}

// TableName returns the table name used as keyspace prefix.
func (e Entity) TableName() string {
	return string(e)
}

// IsValid returns true if this entity is in the list of known entities.
func (e Entity) IsValid() bool {
	return entitySet[e]
}

// Indexes returns the secondary indices declared for the entity.
func (e Entity) Indexes() []Index {
	result := make([]Index, len(entityIndexes[e]))
	copy(result, entityIndexes[e])
	return result
}

// HasIndex reports whether idx is declared for e.
func (e Entity) HasIndex(idx Index) bool {
	for _, candidate := range entityIndexes[e] {
		if candidate == idx {
			return true
		}
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (e Entity) MarshalText() ([]byte, error) {
	return []byte(e), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and rejects unknown entities.
func (e *Entity) UnmarshalText(text []byte) error {
	entity := Entity(text)
	if !entity.IsValid() {
		return fmt.Errorf("invalid entity: %q", text)
	}
	*e = entity
	return nil
}

func (i Index) String() string {
	return string(i)
}

// FromString converts a string to an Entity and validates it.
func FromString(s string) (Entity, error) {
	entity := Entity(s)
	if !entity.IsValid() {
		return "", fmt.Errorf("unknown entity %q, valid entities: %s", s, validEntitiesString())
	}
	return entity, nil
}

// All returns a copy of every valid entity.
func All() []Entity {
	result := make([]Entity, len(allEntities))
	copy(result, allEntities)
	return result
}

func validEntitiesString() string {
	names := make([]string, len(allEntities))
	for i, e := range allEntities {
		names[i] = e.String()
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
