package storage

import (
	"sync"
)

// SimpleStore implements Store with a single map guarded by one lock
// Every operation serializes on mu; it is the baseline ShardedStore is
// measured and checked against
type SimpleStore struct {
	mu   sync.RWMutex      // Protects concurrent access
	data map[string]string // Key-value storage
}

// NewSimpleStore creates a new single-lock store
func NewSimpleStore() *SimpleStore {
	return &SimpleStore{
		data: make(map[string]string),
	}
}

// Get retrieves a value by key
func (m *SimpleStore) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists {
		return "", ErrKeyNotFound
	}
	return value, nil
}

// Put stores a value with the given key
func (m *SimpleStore) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	return nil
}

// Append concatenates value onto the existing value, or stores it if absent
func (m *SimpleStore) Append(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] += value
	return nil
}

// Delete removes a key-value pair and returns the prior value
func (m *SimpleStore) Delete(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, exists := m.data[key]
	if !exists {
		return "", ErrKeyNotFound
	}
	delete(m.data, key)
	return value, nil
}

// MultiGet returns the values for keys in input order
func (m *SimpleStore) MultiGet(keys []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := make([]string, 0, len(keys))
	for _, key := range keys {
		value, exists := m.data[key]
		if !exists {
			return nil, notFound(key)
		}
		values = append(values, value)
	}
	return values, nil
}

// MultiPut writes every pair under one exclusive lock
func (m *SimpleStore) MultiPut(keys, values []string) error {
	if len(keys) != len(values) {
		return arityMismatch(keys, values)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, key := range keys {
		m.data[key] = values[i]
	}
	return nil
}

// AllKeys returns all keys in the store
func (m *SimpleStore) AllKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns storage statistics
func (m *SimpleStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalBytes := 0
	for _, value := range m.data {
		totalBytes += len(value)
	}

	return StoreStats{
		Keys:  len(m.data),
		Bytes: totalBytes,
	}
}
