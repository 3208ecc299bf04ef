// Package storage defines the Store interface shared by every backend of the
// key-value server and provides its two implementations: a single-lock
// baseline and a bucket-partitioned store built for parallel access.
//
// # Overview
//
// Workers in the server execute requests synchronously against one shared
// Store. Both implementations satisfy exactly the same contract, so the
// backend is a configuration choice with no behavioural difference:
//
//	┌─────────────────────────────────────┐
//	│        Worker goroutines            │
//	│   (internal/server dispatcher)      │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│          Store interface            │
//	└─────────────────────────────────────┘
//	          │                 │
//	          ▼                 ▼
//	┌────────────────┐  ┌────────────────┐
//	│  SimpleStore   │  │  ShardedStore  │
//	│  one RWMutex   │  │ RWMutex/bucket │
//	└────────────────┘  └────────────────┘
//
// # Operations
//
//   - Get(key) - Retrieve a value, ErrKeyNotFound if absent
//   - Put(key, value) - Insert or overwrite
//   - Append(key, value) - Concatenate onto the stored value, or Put if absent
//   - Delete(key) - Remove and return the prior value, ErrKeyNotFound if absent
//   - MultiGet(keys) - Atomic read of several keys, all or nothing
//   - MultiPut(keys, values) - Atomic write of several pairs
//   - AllKeys() - Best-effort listing of every key
//
// # Concurrency and Thread Safety
//
// ShardedStore hashes each key with FNV-1a onto a fixed array of buckets.
// Single-key operations lock only their bucket: RLock for reads, Lock for
// writes. Multi-key operations collect the distinct bucket indices of their
// keys, sort them, and lock them in ascending order. Every caller uses that
// same order, so no cycle of waiters can form. The release function is
// deferred, so a MultiGet that fails on a missing key still unlocks every
// bucket it took.
//
// MultiGet takes shared locks since it only reads. Concurrent writers to
// any bucket in its set run entirely before or entirely after it.
//
// AllKeys visits buckets one at a time, so it may observe a write to a late
// bucket but miss one to an early bucket that happened during the walk.
//
// # Error Handling
//
// ErrKeyNotFound: Key doesn't exist in store
//   - Returned by Get, Delete and MultiGet
//   - MultiGet wraps it with the missing key; test with errors.Is
//
// ErrArityMismatch: MultiPut keys and values differ in length
//   - Detected before any lock is taken; nothing is written
//
// # Usage Examples
//
//	store := storage.NewShardedStore(64)
//
//	_ = store.Put("alice_posts", "p1")
//	_ = store.Append("alice_posts", ",p2")
//
//	values, err := store.MultiGet([]string{"alice_posts", "p1"})
//	if errors.Is(err, storage.ErrKeyNotFound) {
//	    log.Println("missing key")
//	}
package storage
