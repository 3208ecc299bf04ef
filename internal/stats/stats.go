// Package stats wraps a storage.Store with operation accounting. Counters
// are kept with atomics for the /info endpoint and mirrored into Prometheus
// collectors for /metrics.
package stats

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/bucketkv/internal/storage"
)

// Operation names used as the "op" label
const (
	OpGet      = "get"
	OpPut      = "put"
	OpAppend   = "append"
	OpDelete   = "delete"
	OpMultiGet = "multiget"
	OpMultiPut = "multiput"
)

// OperationStats tracks operation counts
type OperationStats struct {
	Gets      uint64 `json:"gets"`
	Puts      uint64 `json:"puts"`
	Appends   uint64 `json:"appends"`
	Deletes   uint64 `json:"deletes"`
	MultiGets uint64 `json:"multigets"`
	MultiPuts uint64 `json:"multiputs"`
	NotFound  uint64 `json:"not_found"`
	Arity     uint64 `json:"arity_mismatch"`
}

// Store decorates a storage.Store, counting every call
type Store struct {
	storage.Store

	ops OperationStats

	opsTotal    *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
}

// Wrap returns a counting Store around inner. Collectors are registered
// with reg when it is non-nil.
func Wrap(inner storage.Store, reg prometheus.Registerer) (*Store, error) {
	s := &Store{
		Store: inner,
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bucketkv",
			Name:      "ops_total",
			Help:      "Store operations executed, by operation.",
		}, []string{"op"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bucketkv",
			Name:      "errors_total",
			Help:      "Store operations that failed, by operation and error kind.",
		}, []string{"op", "kind"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{s.opsTotal, s.errorsTotal, newStoreCollector(inner)} {
			if err := reg.Register(c); err != nil {
				return nil, errors.Wrap(err, "registering store metrics")
			}
		}
	}
	return s, nil
}

// Get retrieves a value and counts the call
func (s *Store) Get(key string) (string, error) {
	atomic.AddUint64(&s.ops.Gets, 1)
	v, err := s.Store.Get(key)
	s.observe(OpGet, err)
	return v, err
}

// Put stores a value and counts the call
func (s *Store) Put(key, value string) error {
	atomic.AddUint64(&s.ops.Puts, 1)
	err := s.Store.Put(key, value)
	s.observe(OpPut, err)
	return err
}

// Append concatenates a value and counts the call
func (s *Store) Append(key, value string) error {
	atomic.AddUint64(&s.ops.Appends, 1)
	err := s.Store.Append(key, value)
	s.observe(OpAppend, err)
	return err
}

// Delete removes a key and counts the call
func (s *Store) Delete(key string) (string, error) {
	atomic.AddUint64(&s.ops.Deletes, 1)
	v, err := s.Store.Delete(key)
	s.observe(OpDelete, err)
	return v, err
}

// MultiGet reads several keys and counts the call
func (s *Store) MultiGet(keys []string) ([]string, error) {
	atomic.AddUint64(&s.ops.MultiGets, 1)
	v, err := s.Store.MultiGet(keys)
	s.observe(OpMultiGet, err)
	return v, err
}

// MultiPut writes several pairs and counts the call
func (s *Store) MultiPut(keys, values []string) error {
	atomic.AddUint64(&s.ops.MultiPuts, 1)
	err := s.Store.MultiPut(keys, values)
	s.observe(OpMultiPut, err)
	return err
}

// Unwrap returns the decorated store
func (s *Store) Unwrap() storage.Store {
	return s.Store
}

// Snapshot returns current operation counts
func (s *Store) Snapshot() OperationStats {
	return OperationStats{
		Gets:      atomic.LoadUint64(&s.ops.Gets),
		Puts:      atomic.LoadUint64(&s.ops.Puts),
		Appends:   atomic.LoadUint64(&s.ops.Appends),
		Deletes:   atomic.LoadUint64(&s.ops.Deletes),
		MultiGets: atomic.LoadUint64(&s.ops.MultiGets),
		MultiPuts: atomic.LoadUint64(&s.ops.MultiPuts),
		NotFound:  atomic.LoadUint64(&s.ops.NotFound),
		Arity:     atomic.LoadUint64(&s.ops.Arity),
	}
}

func (s *Store) observe(op string, err error) {
	s.opsTotal.WithLabelValues(op).Inc()
	if err == nil {
		return
	}
	kind := "other"
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		kind = "not_found"
		atomic.AddUint64(&s.ops.NotFound, 1)
	case errors.Is(err, storage.ErrArityMismatch):
		kind = "arity_mismatch"
		atomic.AddUint64(&s.ops.Arity, 1)
	}
	s.errorsTotal.WithLabelValues(op, kind).Inc()
}

// storeCollector reports key and byte totals at scrape time
type storeCollector struct {
	store storage.Store
	keys  *prometheus.Desc
	bytes *prometheus.Desc
}

func newStoreCollector(store storage.Store) *storeCollector {
	return &storeCollector{
		store: store,
		keys:  prometheus.NewDesc("bucketkv_keys", "Number of keys held by the store.", nil, nil),
		bytes: prometheus.NewDesc("bucketkv_value_bytes", "Total size of stored values in bytes.", nil, nil),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keys
	ch <- c.bytes
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.store.Stats()
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(st.Keys))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(st.Bytes))
}

var _ storage.Store = (*Store)(nil)
