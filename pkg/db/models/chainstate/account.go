package chainstate

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// TrackedAccount is an (address, network) pair the cache maintains state for.
type TrackedAccount struct {
	Address string            `json:"address"`
	Network NetworkDescriptor `json:"network"`
}

func (a TrackedAccount) Validate() error {
	if err := a.Network.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(a.Address) == "" {
		return errors.New("account address is required")
	}
	return nil
}

func (a TrackedAccount) String() string {
	return fmt.Sprintf("%s@%s", a.Address, a.Network.Key())
}

// AssetDescriptor identifies a fungible asset. Native assets have no contract address.
type AssetDescriptor struct {
	Symbol          string `json:"symbol"`
	Decimals        uint8  `json:"decimals"`
	ContractAddress string `json:"contract_address,omitempty"`
}

func (a AssetDescriptor) Validate() error {
	if strings.TrimSpace(a.Symbol) == "" && strings.TrimSpace(a.ContractAddress) == "" {
		return errors.New("asset requires a symbol or a contract address")
	}
	return nil
}

// IsNative reports whether the asset is the network's native currency.
func (a AssetDescriptor) IsNative() bool {
	return a.ContractAddress == ""
}

// AccountBalance is one observation of an account's balance of an asset. The ledger keeps every
// observation; the latest is the one with the greatest ObservedAt, then BlockHeight.
type AccountBalance struct {
	Account TrackedAccount  `json:"account"`
	Asset   AssetDescriptor `json:"asset"`
	Amount  *big.Int        `json:"amount"`
	// ObservedAt is the retrieval time in unix milliseconds.
	ObservedAt  int64   `json:"observed_at"`
	BlockHeight *uint64 `json:"block_height,omitempty"`
	Source      string  `json:"source,omitempty"`
}

func (b AccountBalance) Validate() error {
	if err := b.Account.Validate(); err != nil {
		return err
	}
	if err := b.Asset.Validate(); err != nil {
		return err
	}
	if b.Amount == nil {
		return errors.New("balance amount is required")
	}
	if b.ObservedAt < 0 {
		return errors.New("balance observed_at must not be negative")
	}
	return nil
}
