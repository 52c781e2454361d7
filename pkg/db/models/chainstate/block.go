package chainstate

import (
	"encoding/json"
	"errors"
	"strings"
)

// Block is an immutable block header as observed on a network. Fields that only some chain
// families carry live in Payload, which the cache stores without interpreting.
type Block struct {
	Network    NetworkDescriptor `json:"network"`
	Hash       string            `json:"hash"`
	Height     uint64            `json:"height"`
	ParentHash string            `json:"parent_hash,omitempty"`
	// Timestamp is the block time in unix seconds.
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (b Block) Validate() error {
	if err := b.Network.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(b.Hash) == "" {
		return errors.New("block hash is required")
	}
	if len(b.Payload) > 0 && !json.Valid(b.Payload) {
		return errors.New("block payload is not valid JSON")
	}
	return nil
}
