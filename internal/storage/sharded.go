package storage

import (
	"hash/fnv"
	"sync"

	"golang.org/x/exp/slices"
)

// DefaultBucketCount is used when a ShardedStore is built with a
// non-positive bucket count
const DefaultBucketCount = 64

// bucket is one partition of the key space with its own lock
type bucket struct {
	mu    sync.RWMutex      // Guards items
	items map[string]string // Keys hashed to this bucket
}

// BucketInfo contains metadata about a single bucket
type BucketInfo struct {
	Index    int `json:"index"` // Bucket index
	KeyCount int `json:"keys"`  // Number of keys
	ByteSize int `json:"bytes"` // Total size of values in bytes
}

// ShardedStore implements Store over a fixed array of buckets, each guarded
// by its own sync.RWMutex
//
// Locking rules:
//   - A single-key operation locks exactly bucket(key)
//   - A multi-key operation locks the distinct buckets of its key set in
//     ascending index order and holds them until it returns
//   - No store-wide lock exists; operations on disjoint buckets never contend
//
// Ascending acquisition order is what keeps overlapping multi-key operations
// from deadlocking: two callers that both need buckets i < j both take i
// first, so neither can hold j while waiting on i.
type ShardedStore struct {
	buckets []*bucket // Fixed at construction, never resized
}

// NewShardedStore creates a store with n buckets
func NewShardedStore(n int) *ShardedStore {
	if n <= 0 {
		n = DefaultBucketCount
	}
	buckets := make([]*bucket, n)
	for i := range buckets {
		buckets[i] = &bucket{items: make(map[string]string)}
	}
	return &ShardedStore{buckets: buckets}
}

// BucketCount returns the number of buckets
func (s *ShardedStore) BucketCount() int {
	return len(s.buckets)
}

// Bucket returns the index of the bucket that owns key
// The mapping depends only on the key and the bucket count, so a key never
// moves for the lifetime of the store
func (s *ShardedStore) Bucket(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.buckets)))
}

// Get retrieves a value by key under a shared lock on its bucket
func (s *ShardedStore) Get(key string) (string, error) {
	b := s.buckets[s.Bucket(key)]
	b.mu.RLock()
	defer b.mu.RUnlock()

	value, exists := b.items[key]
	if !exists {
		return "", ErrKeyNotFound
	}
	return value, nil
}

// Put stores a value under an exclusive lock on its bucket
func (s *ShardedStore) Put(key, value string) error {
	b := s.buckets[s.Bucket(key)]
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[key] = value
	return nil
}

// Append concatenates value onto the stored value as a single
// read-modify-write under the bucket's exclusive lock
func (s *ShardedStore) Append(key, value string) error {
	b := s.buckets[s.Bucket(key)]
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[key] += value
	return nil
}

// Delete removes a key and returns its prior value
func (s *ShardedStore) Delete(key string) (string, error) {
	b := s.buckets[s.Bucket(key)]
	b.mu.Lock()
	defer b.mu.Unlock()

	value, exists := b.items[key]
	if !exists {
		return "", ErrKeyNotFound
	}
	delete(b.items, key)
	return value, nil
}

// MultiGet reads every key while holding shared locks on all buckets the
// key set touches
func (s *ShardedStore) MultiGet(keys []string) ([]string, error) {
	unlock := s.lockBuckets(s.bucketSet(keys), false)
	defer unlock()

	values := make([]string, 0, len(keys))
	for _, key := range keys {
		value, exists := s.buckets[s.Bucket(key)].items[key]
		if !exists {
			return nil, notFound(key)
		}
		values = append(values, value)
	}
	return values, nil
}

// MultiPut writes every pair while holding exclusive locks on all buckets
// the key set touches. A later duplicate key overwrites an earlier one
func (s *ShardedStore) MultiPut(keys, values []string) error {
	if len(keys) != len(values) {
		return arityMismatch(keys, values)
	}

	unlock := s.lockBuckets(s.bucketSet(keys), true)
	defer unlock()

	for i, key := range keys {
		s.buckets[s.Bucket(key)].items[key] = values[i]
	}
	return nil
}

// AllKeys visits buckets in ascending order, holding one shared lock at a
// time. The result is not a point-in-time snapshot of the whole store:
// writes to a bucket already visited are not reflected
func (s *ShardedStore) AllKeys() []string {
	var keys []string
	for _, b := range s.buckets {
		b.mu.RLock()
		for key := range b.items {
			keys = append(keys, key)
		}
		b.mu.RUnlock()
	}
	if keys == nil {
		keys = []string{}
	}
	return keys
}

// Stats returns storage statistics summed over all buckets
func (s *ShardedStore) Stats() StoreStats {
	var stats StoreStats
	for _, info := range s.BucketStats() {
		stats.Keys += info.KeyCount
		stats.Bytes += info.ByteSize
	}
	return stats
}

// BucketStats returns per-bucket key counts and sizes in index order
func (s *ShardedStore) BucketStats() []BucketInfo {
	infos := make([]BucketInfo, len(s.buckets))
	for i, b := range s.buckets {
		b.mu.RLock()
		size := 0
		for _, value := range b.items {
			size += len(value)
		}
		infos[i] = BucketInfo{Index: i, KeyCount: len(b.items), ByteSize: size}
		b.mu.RUnlock()
	}
	return infos
}

// bucketSet returns the distinct bucket indices covering keys, ascending
func (s *ShardedStore) bucketSet(keys []string) []int {
	idx := make([]int, 0, len(keys))
	for _, key := range keys {
		idx = append(idx, s.Bucket(key))
	}
	slices.Sort(idx)
	return slices.Compact(idx)
}

// lockBuckets acquires the buckets in idx, which must be sorted ascending,
// and returns the function that releases them. Callers defer the returned
// function so every exit path, including an early NotFound, unlocks.
func (s *ShardedStore) lockBuckets(idx []int, exclusive bool) (unlock func()) {
	for _, i := range idx {
		if exclusive {
			s.buckets[i].mu.Lock()
		} else {
			s.buckets[i].mu.RLock()
		}
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			if exclusive {
				s.buckets[idx[j]].mu.Unlock()
			} else {
				s.buckets[idx[j]].mu.RUnlock()
			}
		}
	}
}

var (
	_ Store = (*ShardedStore)(nil)
	_ Store = (*SimpleStore)(nil)
)
