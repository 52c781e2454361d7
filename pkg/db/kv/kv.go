// Package kv defines the ordered byte-key store the storage engine is built on.
//
// A Backend offers two kinds of access:
//
//   - View runs a read-only function against a point-in-time snapshot. Writes committed after the
//     snapshot was taken are not visible to it.
//   - Update runs a read-modify-write function inside a transaction. Updates are serialized by the
//     backend: at most one Update function runs at a time, and its writes become visible to readers
//     only when it returns nil. Returning an error discards every write made by the function.
//
// Keys and values handed to Iterate callbacks are only valid for the duration of the callback.
package kv

import (
	"bytes"
	"errors"
)

// ErrNotFound is returned by Reader.Get when the key is absent.
var ErrNotFound = errors.New("kv: key not found")

// Reader is a consistent read view over the store.
type Reader interface {
	Get(key []byte) ([]byte, error)
	// Iterate visits every key with the given prefix in ascending order (descending when reverse
	// is set) until fn returns false or an error.
	Iterate(prefix []byte, reverse bool, fn func(key, value []byte) (bool, error)) error
}

// Writer is a Reader that can also stage writes. Staged writes are visible to its own reads.
type Writer interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
}

// Backend is a durable ordered key-value store.
type Backend interface {
	// Name identifies the backend implementation in logs and metrics.
	Name() string
	View(fn func(r Reader) error) error
	Update(fn func(w Writer) error) error
	Close() error
}

// PrefixEnd returns the smallest key greater than every key carrying prefix, or nil when no such
// key exists (prefix is empty or all 0xff).
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
