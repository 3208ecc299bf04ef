package storage

import (
	"github.com/cockroachdb/errors"
)

// ErrKeyNotFound is returned when a key doesn't exist in the store
var ErrKeyNotFound = errors.New("key not found")

// ErrArityMismatch is returned by MultiPut when keys and values differ in length
var ErrArityMismatch = errors.New("key/value count mismatch")

// Store defines the interface for key-value storage
// All implementations must be thread-safe for concurrent access and must
// behave identically, so callers can swap one for another freely
type Store interface {
	// Get retrieves a value by key
	// Returns ErrKeyNotFound if the key doesn't exist
	Get(key string) (string, error)

	// Put stores a value with the given key
	// Overwrites any existing value for the key
	Put(key, value string) error

	// Append concatenates value onto the stored value
	// Behaves like Put if the key doesn't exist
	Append(key, value string) error

	// Delete removes a key-value pair and returns the removed value
	// Returns ErrKeyNotFound if the key doesn't exist
	Delete(key string) (string, error)

	// MultiGet returns the values for keys in input order, atomically
	// Returns ErrKeyNotFound if any key is missing; no partial result
	MultiGet(keys []string) ([]string, error)

	// MultiPut writes every key/value pair atomically
	// Returns ErrArityMismatch, writing nothing, if the lengths differ
	MultiPut(keys, values []string) error

	// AllKeys returns all keys in the store
	// Order is not guaranteed
	AllKeys() []string

	// Stats returns storage statistics
	Stats() StoreStats
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Keys  int `json:"keys"`  // Number of keys
	Bytes int `json:"bytes"` // Total size of all values in bytes
}

// Kind names a Store implementation for configuration and reporting
type Kind string

const (
	// KindSharded selects ShardedStore
	KindSharded Kind = "sharded"
	// KindSimple selects SimpleStore
	KindSimple Kind = "simple"
)

// New builds the store named by kind. buckets is ignored by KindSimple.
func New(kind Kind, buckets int) (Store, error) {
	switch kind {
	case KindSharded:
		return NewShardedStore(buckets), nil
	case KindSimple:
		return NewSimpleStore(), nil
	default:
		return nil, errors.Newf("unknown store kind %q", kind)
	}
}

// notFound tags ErrKeyNotFound with the offending key of a multi-key call
func notFound(key string) error {
	return errors.Wrapf(ErrKeyNotFound, "key %q", key)
}

func arityMismatch(keys, values []string) error {
	return errors.Wrapf(ErrArityMismatch, "%d keys, %d values", len(keys), len(values))
}
