package chainstate

import (
	"errors"
	"fmt"
	"strings"
)

// Chain families understood by address and hash normalization.
const (
	FamilyEVM = "EVM"
	FamilyBTC = "BTC"
)

// NetworkDescriptor identifies a chain. Records key off (Family, ChainID); Name is descriptive and
// may not change once the network has been referenced.
type NetworkDescriptor struct {
	Family  string `json:"family"`
	ChainID string `json:"chain_id"`
	Name    string `json:"name,omitempty"`
	// BaseAsset is the symbol of the native asset (ETH, MATIC, BTC).
	BaseAsset string `json:"base_asset,omitempty"`
}

// Well-known networks.
var (
	Ethereum = NetworkDescriptor{Family: FamilyEVM, ChainID: "1", Name: "Ethereum", BaseAsset: "ETH"}
	Polygon  = NetworkDescriptor{Family: FamilyEVM, ChainID: "137", Name: "Polygon", BaseAsset: "MATIC"}
	Arbitrum = NetworkDescriptor{Family: FamilyEVM, ChainID: "42161", Name: "Arbitrum", BaseAsset: "ETH"}
	Optimism = NetworkDescriptor{Family: FamilyEVM, ChainID: "10", Name: "Optimism", BaseAsset: "ETH"}
	Bitcoin  = NetworkDescriptor{Family: FamilyBTC, ChainID: "mainnet", Name: "Bitcoin", BaseAsset: "BTC"}
)

// Key is the stable identifier used by every table that references the network.
// Family is case-insensitive, so "evm" and "EVM" share a key.
func (n NetworkDescriptor) Key() string {
	return strings.ToUpper(strings.TrimSpace(n.Family)) + "/" + strings.TrimSpace(n.ChainID)
}

// IsEVM reports whether the network belongs to the EVM family.
func (n NetworkDescriptor) IsEVM() bool {
	return strings.EqualFold(strings.TrimSpace(n.Family), FamilyEVM)
}

func (n NetworkDescriptor) String() string {
	if n.Name != "" {
		return fmt.Sprintf("%s (%s)", n.Name, n.Key())
	}
	return n.Key()
}

// Validate checks that the identifying fields are present.
func (n NetworkDescriptor) Validate() error {
	if strings.TrimSpace(n.Family) == "" {
		return errors.New("network family is required")
	}
	if strings.TrimSpace(n.ChainID) == "" {
		return errors.New("network chain id is required")
	}
	if strings.Contains(n.Family, "/") {
		return fmt.Errorf("network family %q must not contain '/'", n.Family)
	}
	return nil
}
