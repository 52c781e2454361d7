package chainstate

import (
	"strings"

	"github.com/canopy-network/chaincache/pkg/db/engine"
	"github.com/canopy-network/chaincache/pkg/db/entities"
	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
	"github.com/canopy-network/chaincache/pkg/utils"
)

// addressKey is the canonical spelling of an address on a network. EVM addresses are
// case-insensitive, so checksummed and lowercase forms share a key.
func addressKey(network models.NetworkDescriptor, address string) string {
	address = strings.TrimSpace(address)
	if network.IsEVM() {
		return utils.NormalizeEVMAddress(address)
	}
	return address
}

// hashKey is the canonical spelling of a block or transaction hash on a network.
func hashKey(network models.NetworkDescriptor, hash string) string {
	hash = strings.TrimSpace(hash)
	if network.IsEVM() {
		return strings.ToLower(hash)
	}
	return hash
}

func assetKey(network models.NetworkDescriptor, asset models.AssetDescriptor) string {
	if asset.IsNative() {
		return "native:" + strings.ToUpper(strings.TrimSpace(asset.Symbol))
	}
	return "contract:" + addressKey(network, asset.ContractAddress)
}

func accountTuple(account models.TrackedAccount) []byte {
	return engine.Tuple(
		engine.Str(account.Network.Key()),
		engine.Str(addressKey(account.Network, account.Address)),
	)
}

func accountAssetTuple(account models.TrackedAccount, asset models.AssetDescriptor) []byte {
	return engine.Concat(accountTuple(account), engine.Tuple(engine.Str(assetKey(account.Network, asset))))
}

func networkTuple(network models.NetworkDescriptor) []byte {
	return engine.Tuple(engine.Str(network.Key()))
}

func recordTuple(network models.NetworkDescriptor, hash string) []byte {
	return engine.Tuple(engine.Str(network.Key()), engine.Str(hashKey(network, hash)))
}

func index(i entities.Index) string { return i.String() }

type networkRow struct {
	models.NetworkDescriptor
}

func (r networkRow) PrimaryKey() []byte { return networkTuple(r.NetworkDescriptor) }
func (r networkRow) IndexKeys() map[string][]byte { return nil }

type trackedAccountRow struct {
	Account models.TrackedAccount `json:"account"`
	Seq     uint64                `json:"seq"`
}

func (r trackedAccountRow) PrimaryKey() []byte { return accountTuple(r.Account) }

func (r trackedAccountRow) IndexKeys() map[string][]byte {
	return map[string][]byte{
		index(entities.TrackedAccountsByOrder): engine.Tuple(engine.Uint64(r.Seq)),
		index(entities.TrackedAccountsByAddress): engine.Tuple(
			engine.Str(addressKey(r.Account.Network, r.Account.Address)),
			engine.Str(r.Account.Network.Key()),
		),
	}
}

type balanceRow struct {
	Balance models.AccountBalance `json:"balance"`
	Seq     uint64                `json:"seq"`
}

func (r balanceRow) PrimaryKey() []byte {
	return engine.Concat(accountAssetTuple(r.Balance.Account, r.Balance.Asset), engine.Tuple(engine.Uint64(r.Seq)))
}

// IndexKeys orders history by (observedAt, blockHeight, insertion sequence), so the last entry of
// an (account, asset) prefix is the latest balance.
func (r balanceRow) IndexKeys() map[string][]byte {
	return map[string][]byte{
		index(entities.BalancesByAccountAsset): engine.Concat(
			accountAssetTuple(r.Balance.Account, r.Balance.Asset),
			engine.Tuple(
				engine.Int64(r.Balance.ObservedAt),
				engine.OptUint64(r.Balance.BlockHeight),
				engine.Uint64(r.Seq),
			),
		),
	}
}

type blockRow struct {
	models.Block
}

func (r blockRow) PrimaryKey() []byte { return recordTuple(r.Network, r.Hash) }

func (r blockRow) IndexKeys() map[string][]byte {
	return map[string][]byte{
		index(entities.BlocksByHeight): engine.Tuple(engine.Str(r.Network.Key()), engine.Uint64(r.Height)),
	}
}

// blockPointer is the latest-block pointer of a network.
type blockPointer struct {
	Network models.NetworkDescriptor `json:"network"`
	Hash    string                   `json:"hash"`
	Height  uint64                   `json:"height"`
}

func (p blockPointer) PrimaryKey() []byte { return networkTuple(p.Network) }
func (p blockPointer) IndexKeys() map[string][]byte { return nil }

type txRow struct {
	models.Transaction
}

func (r txRow) PrimaryKey() []byte { return recordTuple(r.Network, r.Hash) }

func (r txRow) IndexKeys() map[string][]byte {
	return map[string][]byte{
		index(entities.TransactionsByStatus): engine.Tuple(
			engine.Str(r.Network.Key()),
			engine.Str(r.Status.String()),
			engine.Int64(r.FirstSeen),
		),
	}
}

type lookupRow struct {
	models.TransferLookup
}

func (r lookupRow) PrimaryKey() []byte { return accountAssetTuple(r.Account, r.Asset) }

func (r lookupRow) IndexKeys() map[string][]byte {
	return map[string][]byte{
		index(entities.TransferLookupsByAccount): accountTuple(r.Account),
	}
}
