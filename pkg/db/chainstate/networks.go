package chainstate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/chaincache/pkg/db/engine"
	"github.com/canopy-network/chaincache/pkg/db/entities"
	models "github.com/canopy-network/chaincache/pkg/db/models/chainstate"
)

// ensureNetwork registers the descriptor on first reference. A later reference may omit the
// descriptive fields but may not contradict them.
func (s *Store) ensureNetwork(tx *engine.Tx, network models.NetworkDescriptor) error {
	table := entities.Networks.TableName()
	stored, err := engine.Load[networkRow](tx, table, networkTuple(network))
	if err != nil {
		return err
	}
	if stored == nil {
		s.logger.Debug("Registering network", zap.String("network", network.Key()), zap.String("name", network.Name))
		return tx.Put(table, networkRow{NetworkDescriptor: network})
	}
	if conflicts(stored.Name, network.Name) || conflicts(stored.BaseAsset, network.BaseAsset) {
		return invalid("network", fmt.Errorf("%s is registered as %q/%q, got %q/%q",
			network.Key(), stored.Name, stored.BaseAsset, network.Name, network.BaseAsset))
	}
	return nil
}

func conflicts(stored, incoming string) bool {
	return incoming != "" && stored != "" && stored != incoming
}

// GetNetworks returns every network referenced by a stored record, ordered by key.
func (s *Store) GetNetworks(ctx context.Context) ([]models.NetworkDescriptor, error) {
	var out []models.NetworkDescriptor
	err := s.engine.View(ctx, func(tx *engine.Tx) error {
		rows, err := engine.Collect[networkRow](tx, entities.Networks.TableName(), engine.Query{})
		if err != nil {
			return err
		}
		out = make([]models.NetworkDescriptor, len(rows))
		for i, row := range rows {
			out[i] = row.NetworkDescriptor
		}
		return nil
	})
	return out, err
}
