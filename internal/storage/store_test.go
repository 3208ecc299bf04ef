package storage

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a constructor for every Store implementation so the same
// behavioural cases run against each of them
func backends() map[string]func() Store {
	return map[string]func() Store{
		"simple":     func() Store { return NewSimpleStore() },
		"sharded":    func() Store { return NewShardedStore(4) },
		"sharded-1":  func() Store { return NewShardedStore(1) },
		"sharded-64": func() Store { return NewShardedStore(64) },
	}
}

// TestStoreConformance tests that every backend honours the Store contract
func TestStoreConformance(t *testing.T) {
	for name, newStore := range backends() {
		newStore := newStore
		t.Run(name, func(t *testing.T) {
			t.Run("new store is empty", func(t *testing.T) {
				store := newStore()

				keys := store.AllKeys()
				if len(keys) != 0 {
					t.Errorf("Expected empty store, got %d keys", len(keys))
				}

				_, err := store.Get("nonexistent")
				if !errors.Is(err, ErrKeyNotFound) {
					t.Errorf("Expected ErrKeyNotFound, got %v", err)
				}
			})

			t.Run("put and get values", func(t *testing.T) {
				store := newStore()
				require.NoError(t, store.Put("key1", "value1"))

				value, err := store.Get("key1")
				require.NoError(t, err)
				assert.Equal(t, "value1", value)
			})

			t.Run("overwrite existing key", func(t *testing.T) {
				store := newStore()
				require.NoError(t, store.Put("key1", "value1"))
				require.NoError(t, store.Put("key1", "value2"))

				value, err := store.Get("key1")
				require.NoError(t, err)
				assert.Equal(t, "value2", value)
			})

			t.Run("append to missing key behaves like put", func(t *testing.T) {
				store := newStore()
				require.NoError(t, store.Append("k", "v"))

				value, err := store.Get("k")
				require.NoError(t, err)
				assert.Equal(t, "v", value)
			})

			t.Run("append concatenates in order", func(t *testing.T) {
				store := newStore()
				require.NoError(t, store.Put("k", "x"))
				require.NoError(t, store.Append("k", "a"))
				require.NoError(t, store.Append("k", "b"))

				value, err := store.Get("k")
				require.NoError(t, err)
				assert.Equal(t, "xab", value)
			})

			t.Run("delete returns prior value", func(t *testing.T) {
				store := newStore()
				require.NoError(t, store.Put("key1", "value1"))

				value, err := store.Delete("key1")
				require.NoError(t, err)
				assert.Equal(t, "value1", value)

				_, err = store.Get("key1")
				assert.True(t, errors.Is(err, ErrKeyNotFound))

				_, err = store.Delete("key1")
				assert.True(t, errors.Is(err, ErrKeyNotFound))
			})

			t.Run("empty key and value", func(t *testing.T) {
				store := newStore()
				require.NoError(t, store.Put("", ""))

				value, err := store.Get("")
				require.NoError(t, err)
				assert.Equal(t, "", value)
				assert.Equal(t, []string{""}, store.AllKeys())
			})

			t.Run("multiget returns values in input order", func(t *testing.T) {
				store := newStore()
				require.NoError(t, store.MultiPut(
					[]string{"a", "b", "c", "d"},
					[]string{"1", "2", "3", "4"},
				))

				values, err := store.MultiGet([]string{"d", "a", "c", "a"})
				require.NoError(t, err)
				assert.Equal(t, []string{"4", "1", "3", "1"}, values)
			})

			t.Run("multiget fails as a whole on a missing key", func(t *testing.T) {
				store := newStore()
				require.NoError(t, store.Put("a", "1"))

				values, err := store.MultiGet([]string{"a", "missing", "a"})
				assert.Nil(t, values)
				assert.True(t, errors.Is(err, ErrKeyNotFound))
				assert.Contains(t, err.Error(), "missing")

				// Every lock taken by the failed call must have been released
				require.NoError(t, store.Put("a", "2"))
				require.NoError(t, store.Put("missing", "now"))
				values, err = store.MultiGet([]string{"a", "missing"})
				require.NoError(t, err)
				assert.Equal(t, []string{"2", "now"}, values)
			})

			t.Run("multiget of no keys", func(t *testing.T) {
				store := newStore()
				values, err := store.MultiGet(nil)
				require.NoError(t, err)
				assert.Empty(t, values)
			})

			t.Run("multiput arity mismatch writes nothing", func(t *testing.T) {
				store := newStore()
				err := store.MultiPut([]string{"x", "y", "z"}, []string{"1", "2"})
				assert.True(t, errors.Is(err, ErrArityMismatch))

				for _, k := range []string{"x", "y", "z"} {
					_, err := store.Get(k)
					assert.True(t, errors.Is(err, ErrKeyNotFound), "key %q was written", k)
				}
				assert.Empty(t, store.AllKeys())
			})

			t.Run("multiput duplicate key keeps last value", func(t *testing.T) {
				store := newStore()
				require.NoError(t, store.MultiPut([]string{"k", "k"}, []string{"first", "second"}))

				value, err := store.Get("k")
				require.NoError(t, err)
				assert.Equal(t, "second", value)
			})

			t.Run("all keys", func(t *testing.T) {
				store := newStore()
				want := make([]string, 0, 50)
				for i := 0; i < 50; i++ {
					key := fmt.Sprintf("key%02d", i)
					want = append(want, key)
					require.NoError(t, store.Put(key, "v"))
				}

				got := store.AllKeys()
				sort.Strings(got)
				assert.Equal(t, want, got)
			})

			t.Run("stats tracking", func(t *testing.T) {
				store := newStore()
				assert.Equal(t, StoreStats{}, store.Stats())

				require.NoError(t, store.Put("a", "12345"))
				require.NoError(t, store.Put("b", "123"))
				assert.Equal(t, StoreStats{Keys: 2, Bytes: 8}, store.Stats())

				_, err := store.Delete("a")
				require.NoError(t, err)
				assert.Equal(t, StoreStats{Keys: 1, Bytes: 3}, store.Stats())
			})
		})
	}
}

// TestStoreConcurrency tests thread safety of every backend
func TestStoreConcurrency(t *testing.T) {
	for name, newStore := range backends() {
		newStore := newStore
		t.Run(name, func(t *testing.T) {
			t.Run("concurrent writes", func(t *testing.T) {
				store := newStore()
				const numGoroutines = 50
				const numOps = 100

				var wg sync.WaitGroup
				for i := 0; i < numGoroutines; i++ {
					wg.Add(1)
					go func(id int) {
						defer wg.Done()
						for j := 0; j < numOps; j++ {
							key := fmt.Sprintf("key-%d-%d", id, j)
							if err := store.Put(key, key); err != nil {
								t.Errorf("Put failed: %v", err)
							}
						}
					}(i)
				}
				wg.Wait()

				assert.Len(t, store.AllKeys(), numGoroutines*numOps)
			})

			t.Run("concurrent appends are not lost", func(t *testing.T) {
				store := newStore()
				const numGoroutines = 20
				const numOps = 50

				var wg sync.WaitGroup
				for i := 0; i < numGoroutines; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						for j := 0; j < numOps; j++ {
							_ = store.Append("counter", "x")
						}
					}()
				}
				wg.Wait()

				value, err := store.Get("counter")
				require.NoError(t, err)
				assert.Len(t, value, numGoroutines*numOps)
			})

			t.Run("concurrent mixed operations", func(t *testing.T) {
				store := newStore()
				for i := 0; i < 20; i++ {
					_ = store.Put(fmt.Sprintf("k%d", i), "init")
				}

				var wg sync.WaitGroup
				for i := 0; i < 16; i++ {
					wg.Add(1)
					go func(id int) {
						defer wg.Done()
						for j := 0; j < 200; j++ {
							key := fmt.Sprintf("k%d", (id+j)%20)
							switch j % 6 {
							case 0:
								_, _ = store.Get(key)
							case 1:
								_ = store.Put(key, "v")
							case 2:
								_ = store.Append(key, "a")
							case 3:
								_, _ = store.Delete(key)
							case 4:
								_, _ = store.MultiGet([]string{key, "k0", "k19"})
							case 5:
								_ = store.MultiPut([]string{key, "k7"}, []string{"m", "m"})
							}
						}
					}(i)
				}
				wg.Wait()
			})
		})
	}
}
