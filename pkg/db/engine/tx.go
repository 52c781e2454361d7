package engine

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/canopy-network/chaincache/pkg/db/kv"
	"github.com/canopy-network/chaincache/pkg/metrics"
)

// Record is a value stored in a table. PrimaryKey and the IndexKeys values must be Tuple encodings.
type Record interface {
	PrimaryKey() []byte
	IndexKeys() map[string][]byte
}

// Query selects records of a table either by primary-key prefix (Index empty) or by secondary
// index prefix.
type Query struct {
	Index   string
	Prefix  []byte
	Reverse bool
	Limit   int
}

// Tx is a read view (from Engine.View) or a read-write transaction (from Engine.Transact).
type Tx struct {
	r       kv.Reader
	w       kv.Writer
	metrics *metrics.StoreMetrics
}

// Writable reports whether the Tx accepts writes.
func (tx *Tx) Writable() bool { return tx.w != nil }

func (tx *Tx) unavailable(op string, err error) error {
	tx.metrics.ObserveStorageError(op)
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

func (tx *Tx) writer() (kv.Writer, error) {
	if tx.w == nil {
		return nil, errors.New("engine: write attempted in read-only view")
	}
	return tx.w, nil
}

// Get decodes the record stored under pk into dst and reports whether it exists.
func (tx *Tx) Get(table string, pk []byte, dst any) (bool, error) {
	raw, err := tx.r.Get(Concat(recordPrefix(table), pk))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, tx.unavailable("get", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, tx.unavailable("decode", fmt.Errorf("%s record: %w", table, err))
	}
	return true, nil
}

// Has reports whether a record exists under pk.
func (tx *Tx) Has(table string, pk []byte) (bool, error) {
	_, err := tx.r.Get(Concat(recordPrefix(table), pk))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, tx.unavailable("get", err)
	}
	return true, nil
}

// Put upserts rec by primary key and rewrites its index entries.
func (tx *Tx) Put(table string, rec Record) error {
	w, err := tx.writer()
	if err != nil {
		return err
	}
	pk := rec.PrimaryKey()
	if len(pk) == 0 {
		return fmt.Errorf("%w: %s record without primary key", ErrInvalidRecord, table)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode %s record: %v", ErrInvalidRecord, table, err)
	}

	if err := tx.dropIndexEntries(w, table, pk); err != nil {
		return err
	}
	if err := w.Set(Concat(recordPrefix(table), pk), raw); err != nil {
		return tx.unavailable("put", err)
	}

	indexes := rec.IndexKeys()
	names := make([]string, 0, len(indexes))
	for name := range indexes {
		names = append(names, name)
	}
	sort.Strings(names)

	refs := make([][]byte, 0, len(names))
	for _, name := range names {
		entry := Concat(indexPrefix(table, name), indexes[name], pk)
		if err := w.Set(entry, pk); err != nil {
			return tx.unavailable("put_index", err)
		}
		refs = append(refs, entry)
	}
	if len(refs) == 0 {
		return nil
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("%w: encode index refs: %v", ErrInvalidRecord, err)
	}
	if err := w.Set(indexRefKey(table, pk), encoded); err != nil {
		return tx.unavailable("put_index", err)
	}
	return nil
}

// Delete removes the record under pk with its index entries and reports whether it existed.
func (tx *Tx) Delete(table string, pk []byte) (bool, error) {
	w, err := tx.writer()
	if err != nil {
		return false, err
	}
	found, err := tx.Has(table, pk)
	if err != nil || !found {
		return false, err
	}
	if err := tx.dropIndexEntries(w, table, pk); err != nil {
		return false, err
	}
	if err := w.Delete(Concat(recordPrefix(table), pk)); err != nil {
		return false, tx.unavailable("delete", err)
	}
	return true, nil
}

func (tx *Tx) dropIndexEntries(w kv.Writer, table string, pk []byte) error {
	refKey := indexRefKey(table, pk)
	raw, err := w.Get(refKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return tx.unavailable("get_index", err)
	}
	var refs [][]byte
	if err := json.Unmarshal(raw, &refs); err != nil {
		return tx.unavailable("decode", fmt.Errorf("%s index refs: %w", table, err))
	}
	for _, ref := range refs {
		if err := w.Delete(ref); err != nil {
			return tx.unavailable("delete_index", err)
		}
	}
	if err := w.Delete(refKey); err != nil {
		return tx.unavailable("delete_index", err)
	}
	return nil
}

// Query calls fn with every record matching q, in key order. raw is only valid during the call.
// fn must not write through the same Tx; collect first and write afterwards.
func (tx *Tx) Query(table string, q Query, fn func(raw []byte) (bool, error)) error {
	var fnErr error
	seen := 0
	visit := func(raw []byte) (bool, error) {
		more, err := fn(raw)
		if err != nil {
			fnErr = err
			return false, err
		}
		seen++
		if q.Limit > 0 && seen >= q.Limit {
			return false, nil
		}
		return more, nil
	}

	var err error
	if q.Index == "" {
		err = tx.r.Iterate(Concat(recordPrefix(table), q.Prefix), q.Reverse, func(_, value []byte) (bool, error) {
			return visit(value)
		})
	} else {
		err = tx.r.Iterate(Concat(indexPrefix(table, q.Index), q.Prefix), q.Reverse, func(_, pk []byte) (bool, error) {
			raw, getErr := tx.r.Get(Concat(recordPrefix(table), pk))
			if getErr != nil {
				return false, tx.unavailable("query", fmt.Errorf("dangling %s.%s entry: %w", table, q.Index, getErr))
			}
			return visit(raw)
		})
	}
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		if errors.Is(err, ErrStorageUnavailable) {
			return err
		}
		return tx.unavailable("query", err)
	}
	return nil
}

// NextSequence returns a table-scoped counter, starting at 1, that increases on every call.
func (tx *Tx) NextSequence(table string) (uint64, error) {
	w, err := tx.writer()
	if err != nil {
		return 0, err
	}
	key := sequenceKey(table)
	var current uint64
	raw, err := w.Get(key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return 0, tx.unavailable("sequence", err)
	case len(raw) == 8:
		current = binary.BigEndian.Uint64(raw)
	default:
		return 0, tx.unavailable("sequence", fmt.Errorf("malformed %s sequence", table))
	}
	current++
	if err := w.Set(key, binary.BigEndian.AppendUint64(nil, current)); err != nil {
		return 0, tx.unavailable("sequence", err)
	}
	return current, nil
}

func (tx *Tx) getMeta(name string, dst any) (bool, error) {
	raw, err := tx.r.Get(metaKey(name))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, tx.unavailable("meta", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, tx.unavailable("meta", err)
	}
	return true, nil
}

func (tx *Tx) putMeta(name string, value any) error {
	w, err := tx.writer()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := w.Set(metaKey(name), raw); err != nil {
		return tx.unavailable("meta", err)
	}
	return nil
}
