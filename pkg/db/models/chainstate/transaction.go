package chainstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// TxStatus is the lifecycle state of a transaction. Pending is the initial state; Confirmed and
// Failed are terminal.
type TxStatus uint8

const (
	TxStatusUnknown TxStatus = iota
	TxStatusPending
	TxStatusConfirmed
	TxStatusFailed
)

var txStatusNames = map[TxStatus]string{
	TxStatusPending:   "pending",
	TxStatusConfirmed: "confirmed",
	TxStatusFailed:    "failed",
}

func (s TxStatus) String() string {
	if name, ok := txStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsValid reports whether s is one of the three lifecycle states.
func (s TxStatus) IsValid() bool {
	_, ok := txStatusNames[s]
	return ok
}

// IsTerminal reports whether no further transition is possible.
func (s TxStatus) IsTerminal() bool {
	return s == TxStatusConfirmed || s == TxStatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed. Only pending → confirmed and
// pending → failed are.
func (s TxStatus) CanTransitionTo(next TxStatus) bool {
	return s == TxStatusPending && next.IsTerminal()
}

func (s TxStatus) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid transaction status %d", s)
	}
	return []byte(s.String()), nil
}

func (s *TxStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseTxStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseTxStatus parses the lowercase status name.
func ParseTxStatus(name string) (TxStatus, error) {
	for status, candidate := range txStatusNames {
		if strings.EqualFold(candidate, name) {
			return status, nil
		}
	}
	return TxStatusUnknown, fmt.Errorf("unknown transaction status %q", name)
}

// Transaction is the common envelope of a transaction on any network. Chain-specific fields live
// in Payload. Optional pointer and string fields left empty mean "not observed" and never erase a
// stored value when merged.
type Transaction struct {
	Network     NetworkDescriptor `json:"network"`
	Hash        string            `json:"hash"`
	Status      TxStatus          `json:"status"`
	From        string            `json:"from,omitempty"`
	To          string            `json:"to,omitempty"`
	Value       *big.Int          `json:"value,omitempty"`
	Nonce       *uint64           `json:"nonce,omitempty"`
	BlockHash   string            `json:"block_hash,omitempty"`
	BlockHeight *uint64           `json:"block_height,omitempty"`
	// ObservedAt is when the reporting collector saw this version, in unix milliseconds.
	ObservedAt int64 `json:"observed_at,omitempty"`
	// FirstSeen is set by the cache on first insert and never changes afterwards.
	FirstSeen int64 `json:"first_seen,omitempty"`
	// Source names the collector that reported the transaction (node, indexer API, local).
	Source  string          `json:"source,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (t Transaction) Validate() error {
	if err := t.Network.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Hash) == "" {
		return errors.New("transaction hash is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("transaction status %d is not valid", t.Status)
	}
	if len(t.Payload) > 0 && !json.Valid(t.Payload) {
		return errors.New("transaction payload is not valid JSON")
	}
	return nil
}
