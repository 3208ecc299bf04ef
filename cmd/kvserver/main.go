// Package main implements the bucketkv server: an in-memory key-value store
// served over a framed TCP protocol by a fixed pool of workers.
//
// Architecture:
//
//	┌──────────────────────────────────────────┐
//	│               kvserver                   │
//	├──────────────────────────────────────────┤
//	│  KV listener (framed TCP):               │
//	│    acceptor → BlockingQueue → workers    │
//	│    workers execute against the store     │
//	├──────────────────────────────────────────┤
//	│  Admin HTTP:                             │
//	│    /health   - Health check              │
//	│    /info     - Store and dispatcher info │
//	│    /keys     - Key listing               │
//	│    /metrics  - Prometheus metrics        │
//	└──────────────────────────────────────────┘
//
// Configuration is read from a TOML file (-config or BUCKETKV_CONFIG) and
// BUCKETKV_* environment variables; -listen and -admin override both.
//
// Example usage:
//
//	# Start with defaults (sharded store, 64 buckets, 8 workers)
//	./kvserver
//
//	# Single-lock store, JSON logs
//	BUCKETKV_STORE_KIND=simple BUCKETKV_LOG_FORMAT=json ./kvserver -listen :7070
//
//	# Inspect
//	curl localhost:7071/info
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/bucketkv/internal/config"
	"github.com/dreamware/bucketkv/internal/logging"
	"github.com/dreamware/bucketkv/internal/protocol"
	"github.com/dreamware/bucketkv/internal/server"
	"github.com/dreamware/bucketkv/internal/stats"
	"github.com/dreamware/bucketkv/internal/storage"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// shutdownTimeout bounds the admin server's graceful shutdown
const shutdownTimeout = 5 * time.Second

// app holds the wired components of a running server.
//
// The store seen by the dispatcher is the stats wrapper; sharded is the
// underlying ShardedStore when that kind is configured, kept for the
// per-bucket view in /info.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *stats.Store
	sharded    *storage.ShardedStore
	registry   *prometheus.Registry
	dispatcher *server.Dispatcher
}

// newApp builds the store, its metrics and the dispatcher from cfg.
//
// Returns an error if the store kind or codec is unknown or metrics
// registration fails. cfg is expected to have passed Validate.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	inner, err := storage.New(storage.Kind(cfg.Store.Kind), cfg.Store.Buckets)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	store, err := stats.Wrap(inner, reg)
	if err != nil {
		return nil, err
	}

	codecs := protocol.NewRegistry()
	codec, err := codecs.Lookup(cfg.Protocol.Codec)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      logger,
		store:    store,
		registry: reg,
		dispatcher: server.New(store, server.Options{
			Workers:     cfg.Server.Workers,
			QueueWarn:   cfg.Server.QueueWarn,
			IdleTimeout: cfg.Server.IdleTimeout,
			MaxFrame:    cfg.Protocol.MaxFrame,
			Codecs:      codecs,
			Codec:       codec,
			Logger:      logger,
		}),
	}
	if s, ok := inner.(*storage.ShardedStore); ok {
		a.sharded = s
	}
	return a, nil
}

// run serves the KV protocol on ln and, when adminLn is non-nil, the admin
// HTTP API on adminLn. It blocks until ctx is cancelled or either server
// fails, then shuts both down.
func (a *app) run(ctx context.Context, ln, adminLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.dispatcher.Serve(gctx, ln)
	})

	if adminLn != nil {
		srv := &http.Server{
			Handler:           a.adminMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info("admin listening", zap.Stringer("addr", adminLn.Addr()))
			if err := srv.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "admin server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

// adminMux configures the admin HTTP routes
func (a *app) adminMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoint for monitoring
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/info", a.handleInfo)
	mux.HandleFunc("/keys", a.handleKeys)
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return mux
}

// infoResponse is the body of GET /info
type infoResponse struct {
	Store      string               `json:"store"`
	Buckets    int                  `json:"buckets,omitempty"`
	Storage    storage.StoreStats   `json:"storage"`
	Ops        stats.OperationStats `json:"operations"`
	Dispatcher server.Stats         `json:"dispatcher"`
	BucketInfo []storage.BucketInfo `json:"bucket_stats,omitempty"`
}

// handleInfo reports the store kind, key and byte totals, operation
// counters and dispatcher counters.
//
// Endpoint: GET /info[?buckets=1]
//
// With buckets=1 and a sharded store, per-bucket key counts and sizes are
// included. Bucket figures are read one bucket at a time and are not a
// consistent snapshot across buckets.
//
// Response:
//   - 200 OK: JSON infoResponse
//   - 405 Method Not Allowed: non-GET request
func (a *app) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := infoResponse{
		Store:      a.cfg.Store.Kind,
		Storage:    a.store.Stats(),
		Ops:        a.store.Snapshot(),
		Dispatcher: a.dispatcher.Stats(),
	}
	if a.sharded != nil {
		resp.Buckets = a.sharded.BucketCount()
		if r.URL.Query().Get("buckets") == "1" {
			resp.BucketInfo = a.sharded.BucketStats()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.log.Warn("writing /info response", zap.Error(err))
	}
}

// handleKeys lists stored keys, sorted.
//
// Endpoint: GET /keys[?prefix=p]
//
// The listing is best effort: keys written or removed while it runs may or
// may not appear.
//
// Response body:
//
//	{"keys": ["a", "b"], "count": 2}
func (a *app) handleKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	prefix := r.URL.Query().Get("prefix")
	keys := make([]string, 0)
	for _, k := range a.store.AllKeys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	response := struct {
		Keys  []string `json:"keys"`
		Count int      `json:"count"`
	}{
		Keys:  keys,
		Count: len(keys),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		a.log.Warn("writing /keys response", zap.Error(err))
	}
}

// loadConfig loads the file and environment configuration, applies the
// non-empty flag overrides and validates the result.
func loadConfig(path, listen, admin string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if admin != "" {
		cfg.Admin.Listen = admin
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "after flag overrides")
	}
	return cfg, nil
}

// main loads configuration, builds the store and serves until SIGINT or
// SIGTERM.
//
// Exit codes:
//   - 0: Normal shutdown via signal
//   - 1: Invalid configuration, logger setup failure, or listen failure
func main() {
	configPath := flag.String("config", "", "path to TOML config file (default $BUCKETKV_CONFIG)")
	listen := flag.String("listen", "", "KV listen address (overrides config)")
	admin := flag.String("admin", "", "admin HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *listen, *admin)
	if err != nil {
		logFatal("config: %v", err)
		return
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logFatal("logging: %v", err)
		return
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cfg, logger)
	if err != nil {
		logFatal("setup: %v", err)
		return
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		logFatal("listen: %v", err)
		return
	}
	var adminLn net.Listener
	if cfg.Admin.Listen != "" {
		if adminLn, err = net.Listen("tcp", cfg.Admin.Listen); err != nil {
			logFatal("admin listen: %v", err)
			return
		}
	}

	logger.Info("store ready",
		zap.String("kind", cfg.Store.Kind),
		zap.Int("buckets", cfg.Store.Buckets),
		zap.String("codec", cfg.Protocol.Codec))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, ln, adminLn); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
