package engine

import (
	"encoding/json"
	"fmt"
)

// Load returns the record stored under pk, or nil when absent.
func Load[T any](tx *Tx, table string, pk []byte) (*T, error) {
	var out T
	found, err := tx.Get(table, pk, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// Collect decodes every record matching q.
func Collect[T any](tx *Tx, table string, q Query) ([]T, error) {
	out := make([]T, 0)
	err := tx.Query(table, q, func(raw []byte) (bool, error) {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return false, tx.unavailable("decode", fmt.Errorf("%s record: %w", table, err))
		}
		out = append(out, item)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// First returns the first record matching q, or nil when nothing matches.
func First[T any](tx *Tx, table string, q Query) (*T, error) {
	q.Limit = 1
	items, err := Collect[T](tx, table, q)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}
