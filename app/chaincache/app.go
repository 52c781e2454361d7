// Package chaincache is the composition root of the chain-state cache: it loads configuration,
// opens the store and runs inspection commands against it.
package chaincache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/canopy-network/chaincache/pkg/config"
	"github.com/canopy-network/chaincache/pkg/db/chainstate"
	"github.com/canopy-network/chaincache/pkg/db/engine"
	"github.com/canopy-network/chaincache/pkg/db/entities"
	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
	"github.com/canopy-network/chaincache/pkg/logging"
)

type App struct {
	Config *config.Config
	Store  *chainstate.Store
	Logger *zap.Logger
}

// Initialize loads configuration from configPath and the environment and opens the store.
func Initialize(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewWith(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, logger)
}

// New opens the store described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := chainstate.Open(ctx, logger, cfg.EngineOptions())
	if err != nil {
		return nil, err
	}
	logger.Debug("Store opened",
		zap.String("backend", cfg.Backend),
		zap.String("dir", cfg.DataDir),
		zap.Bool("in_memory", cfg.InMemory))
	return &App{Config: cfg, Store: store, Logger: logger}, nil
}

// Stop closes the store.
func (a *App) Stop() {
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("Unable to close store", zap.Error(err))
	}
	_ = a.Logger.Sync()
}

// Usage lists the commands understood by Run.
const Usage = `commands:
  accounts                                     tracked accounts in insertion order
  chains                                       distinct tracked networks as family/chain-id
  networks                                     every network referenced by stored records
  track <family> <chain-id> <address>          start tracking an account
  untrack <family> <chain-id> <address>        stop tracking an account (history is kept)
  untrack-address <address>                    stop tracking an address on every network
  block <family> <chain-id> <hash>             one block
  latest-block <family> <chain-id>             highest stored block
  tx <family> <chain-id> <hash>                one transaction
  pending <family> <chain-id>                  pending transactions, oldest first
  hashes [<family> <chain-id>]                 stored transaction hashes
  balance <family> <chain-id> <address> <symbol> [contract]
                                               latest balance of an asset
  lookup <family> <chain-id> <address> <symbol> [contract]
                                               transfer-history cursor of an asset
  tables                                       table names
  count <table>                                number of records in a table
  config                                       effective configuration as TOML
  save-config <path>                           write the effective configuration to a file`

// Run executes one command and writes its result to out as indented JSON.
func (a *App) Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", Usage)
	}
	cmd, args := args[0], args[1:]
	result, err := a.dispatch(ctx, cmd, args)
	if err != nil {
		return err
	}
	if s, ok := result.(rawOutput); ok {
		_, err := io.WriteString(out, string(s))
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

type rawOutput string

type balanceView struct {
	*models.AccountBalance
	Formatted string `json:"formatted"`
}

func (a *App) dispatch(ctx context.Context, cmd string, args []string) (any, error) {
	s := a.Store
	switch cmd {
	case "accounts":
		return s.GetAccountsToTrack(ctx)
	case "chains":
		return s.GetChainIDsToTrack(ctx)
	case "networks":
		return s.GetNetworks(ctx)
	case "track":
		account, err := accountArgs(args, 0)
		if err != nil {
			return nil, err
		}
		return s.AddAccountToTrack(ctx, account)
	case "untrack":
		account, err := accountArgs(args, 0)
		if err != nil {
			return nil, err
		}
		removed, err := s.RemoveAccountToTrack(ctx, account)
		return map[string]bool{"removed": removed}, err
	case "untrack-address":
		if len(args) != 1 {
			return nil, usageError(cmd)
		}
		removed, err := s.RemoveAddressToTrack(ctx, args[0])
		return map[string]int{"removed": removed}, err
	case "block", "tx":
		if len(args) != 3 {
			return nil, usageError(cmd)
		}
		network := ParseNetwork(args[0], args[1])
		if cmd == "block" {
			return s.GetBlock(ctx, network, args[2])
		}
		return s.GetTransaction(ctx, network, args[2])
	case "latest-block", "pending":
		if len(args) != 2 {
			return nil, usageError(cmd)
		}
		network := ParseNetwork(args[0], args[1])
		if cmd == "latest-block" {
			return s.GetLatestBlock(ctx, network)
		}
		return s.GetNetworkPendingTransactions(ctx, network)
	case "hashes":
		switch len(args) {
		case 0:
			return s.GetAllSavedTransactionHashes(ctx)
		case 2:
			return s.GetSavedTransactionHashes(ctx, ParseNetwork(args[0], args[1]))
		default:
			return nil, usageError(cmd)
		}
	case "balance", "lookup":
		account, err := accountArgs(args, 2)
		if err != nil {
			return nil, err
		}
		asset := models.AssetDescriptor{Symbol: args[3]}
		if len(args) == 5 {
			asset.ContractAddress = args[4]
		}
		if cmd == "balance" {
			balance, err := s.GetLatestAccountBalance(ctx, account, asset)
			if err != nil || balance == nil {
				return balance, err
			}
			return balanceView{AccountBalance: balance, Formatted: FormatAmount(balance.Amount, balance.Asset.Decimals)}, nil
		}
		return s.GetAccountAssetTransferLookup(ctx, account, asset)
	case "tables":
		return entities.All(), nil
	case "count":
		if len(args) != 1 {
			return nil, usageError(cmd)
		}
		entity, err := entities.FromString(args[0])
		if err != nil {
			return nil, err
		}
		n := 0
		err = s.Engine().Query(ctx, entity.TableName(), engine.Query{}, func([]byte) (bool, error) {
			n++
			return true, nil
		})
		return map[string]int{entity.String(): n}, err
	case "save-config":
		if len(args) != 1 {
			return nil, usageError(cmd)
		}
		if err := a.Config.Save(args[0]); err != nil {
			return nil, err
		}
		return map[string]string{"saved": args[0]}, nil
	case "config":
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(a.Config); err != nil {
			return nil, err
		}
		return rawOutput(b.String()), nil
	default:
		return nil, fmt.Errorf("unknown command %q\n%s", cmd, Usage)
	}
}

func usageError(cmd string) error {
	return fmt.Errorf("wrong arguments for %q\n%s", cmd, Usage)
}

// accountArgs reads <family> <chain-id> <address>, followed by extra positional arguments of
// which the last may be omitted.
func accountArgs(args []string, extra int) (models.TrackedAccount, error) {
	if len(args) < 3+extra-1 || len(args) > 3+extra || (extra == 0 && len(args) != 3) {
		return models.TrackedAccount{}, fmt.Errorf("expected <family> <chain-id> <address>, got %d arguments\n%s", len(args), Usage)
	}
	return models.TrackedAccount{Address: args[2], Network: ParseNetwork(args[0], args[1])}, nil
}

var knownNetworks = []models.NetworkDescriptor{
	models.Ethereum,
	models.Polygon,
	models.Arbitrum,
	models.Optimism,
	models.Bitcoin,
}

// ParseNetwork resolves a family and chain id to a well-known descriptor, or a bare one.
func ParseNetwork(family, chainID string) models.NetworkDescriptor {
	family = strings.ToUpper(strings.TrimSpace(family))
	chainID = strings.TrimSpace(chainID)
	for _, n := range knownNetworks {
		if n.Family == family && n.ChainID == chainID {
			return n
		}
	}
	return models.NetworkDescriptor{Family: family, ChainID: chainID}
}

// FormatAmount renders amount in whole units of an asset with decimals.
func FormatAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return ""
	}
	if decimals == 0 {
		return amount.String()
	}
	neg := amount.Sign() < 0
	digits := new(big.Int).Abs(amount).String()
	d := int(decimals)
	if len(digits) <= d {
		digits = strings.Repeat("0", d-len(digits)+1) + digits
	}
	whole, frac := digits[:len(digits)-d], strings.TrimRight(digits[len(digits)-d:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
