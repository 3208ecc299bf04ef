package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Listen != "127.0.0.1:7070" {
		t.Errorf("Server.Listen: got %q, want 127.0.0.1:7070", cfg.Server.Listen)
	}
	if cfg.Store.Kind != "sharded" || cfg.Store.Buckets != 64 {
		t.Errorf("Store: got %+v", cfg.Store)
	}
	if cfg.Protocol.Codec != "cbor" {
		t.Errorf("Protocol.Codec: got %q, want cbor", cfg.Protocol.Codec)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNoFile(t *testing.T) {
	t.Setenv(EnvPrefix+"CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Workers != 8 {
		t.Errorf("Server.Workers: got %d, want 8", cfg.Server.Workers)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bucketkv.toml")
	toml := `
[server]
listen = "0.0.0.0:9000"
workers = 32
queue_warn = 0
idle_timeout = "30s"

[store]
kind = "Simple"

[protocol]
codec = "proto"
max_frame = 1024

[admin]
listen = ""

[log]
level = "debug"
format = "json"
outputs = ["stdout", "/tmp/bucketkv.log"]

[log.rotation]
enable = true
max_size_mb = 5
`
	if err := os.WriteFile(path, []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Listen != "0.0.0.0:9000" || cfg.Server.Workers != 32 {
		t.Errorf("Server: got %+v", cfg.Server)
	}
	if cfg.Server.IdleTimeout != 30*time.Second {
		t.Errorf("Server.IdleTimeout: got %s", cfg.Server.IdleTimeout)
	}
	if cfg.Store.Kind != "simple" {
		t.Errorf("Store.Kind should be normalised, got %q", cfg.Store.Kind)
	}
	if cfg.Protocol.Codec != "proto" || cfg.Protocol.MaxFrame != 1024 {
		t.Errorf("Protocol: got %+v", cfg.Protocol)
	}
	if cfg.Admin.Listen != "" {
		t.Errorf("Admin.Listen: got %q, want empty", cfg.Admin.Listen)
	}
	if len(cfg.Log.Outputs) != 2 || !cfg.Log.Rotation.Enable || cfg.Log.Rotation.MaxSizeMB != 5 {
		t.Errorf("Log: got %+v", cfg.Log)
	}
	// Untouched nested defaults survive
	if cfg.Log.Rotation.MaxBackups != 3 {
		t.Errorf("Log.Rotation.MaxBackups: got %d, want 3", cfg.Log.Rotation.MaxBackups)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[server\nlisten="), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"CONFIG", "")
	t.Setenv(EnvPrefix+"SERVER_LISTEN", ":8000")
	t.Setenv(EnvPrefix+"SERVER_WORKERS", "3")
	t.Setenv(EnvPrefix+"STORE_BUCKETS", "16")
	t.Setenv(EnvPrefix+"LOG_OUTPUTS", "stdout,stderr")
	t.Setenv(EnvPrefix+"SERVER_IDLE_TIMEOUT", "2m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":8000" {
		t.Errorf("Server.Listen: got %q", cfg.Server.Listen)
	}
	if cfg.Server.Workers != 3 {
		t.Errorf("Server.Workers: got %d", cfg.Server.Workers)
	}
	if cfg.Store.Buckets != 16 {
		t.Errorf("Store.Buckets: got %d", cfg.Store.Buckets)
	}
	if len(cfg.Log.Outputs) != 2 {
		t.Errorf("Log.Outputs: got %v", cfg.Log.Outputs)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("Server.IdleTimeout: got %s", cfg.Server.IdleTimeout)
	}
}

func TestLoadEnvOverridesLogFields(t *testing.T) {
	t.Setenv(EnvPrefix+"CONFIG", "")
	t.Setenv(EnvPrefix+"LOG_DEVELOPMENT", "true")
	t.Setenv(EnvPrefix+"LOG_ROTATION_ENABLE", "true")
	t.Setenv(EnvPrefix+"LOG_ROTATION_MAX_SIZE_MB", "7")
	t.Setenv(EnvPrefix+"LOG_ROTATION_COMPRESS", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Log.Development {
		t.Error("Log.Development: want true")
	}
	rot := cfg.Log.Rotation
	if !rot.Enable || rot.MaxSizeMB != 7 || rot.Compress {
		t.Errorf("Log.Rotation: got %+v", rot)
	}
	if rot.MaxBackups != 3 {
		t.Errorf("Log.Rotation.MaxBackups: got %d, want default 3", rot.MaxBackups)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bucketkv.toml")
	if err := os.WriteFile(path, []byte("[server]\nworkers = 32\nlisten = \"0.0.0.0:9000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPrefix+"SERVER_WORKERS", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Workers != 4 {
		t.Errorf("Server.Workers: got %d, want 4 from env", cfg.Server.Workers)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" {
		t.Errorf("Server.Listen: got %q, want file value", cfg.Server.Listen)
	}
}

func TestEnvViperSeedsEveryField(t *testing.T) {
	v := envViper(Defaults())
	want := []string{
		"server.listen", "server.workers", "server.queue_warn", "server.idle_timeout",
		"store.kind", "store.buckets",
		"protocol.codec", "protocol.max_frame",
		"admin.listen",
		"log.level", "log.format", "log.outputs", "log.development",
		"log.rotation.enable", "log.rotation.max_size_mb", "log.rotation.max_backups",
		"log.rotation.max_age_days", "log.rotation.compress",
	}
	got := make(map[string]bool)
	for _, k := range v.AllKeys() {
		got[k] = true
	}
	for _, k := range want {
		if !got[k] {
			t.Errorf("key %q not seeded", k)
		}
	}
	if len(got) != len(want) {
		t.Errorf("seeded %d keys, want %d: %v", len(got), len(want), v.AllKeys())
	}
}

func TestLoadEnvBadNumber(t *testing.T) {
	t.Setenv(EnvPrefix+"CONFIG", "")
	t.Setenv(EnvPrefix+"STORE_BUCKETS", "many")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric bucket count")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty listen", func(c *Config) { c.Server.Listen = " " }, true},
		{"zero workers", func(c *Config) { c.Server.Workers = 0 }, true},
		{"negative queue warn", func(c *Config) { c.Server.QueueWarn = -1 }, true},
		{"negative idle timeout", func(c *Config) { c.Server.IdleTimeout = -time.Second }, true},
		{"zero buckets", func(c *Config) { c.Store.Buckets = 0 }, true},
		{"zero buckets ignored for simple", func(c *Config) { c.Store.Kind = "simple"; c.Store.Buckets = 0 }, false},
		{"unknown store", func(c *Config) { c.Store.Kind = "btree" }, true},
		{"unknown codec", func(c *Config) { c.Protocol.Codec = "xml" }, true},
		{"upper-case codec", func(c *Config) { c.Protocol.Codec = "JSON" }, false},
		{"negative max frame", func(c *Config) { c.Protocol.MaxFrame = -1 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"warning alias", func(c *Config) { c.Log.Level = "warning" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFillsLogDefaults(t *testing.T) {
	cfg := Defaults()
	cfg.Log.Format = ""
	cfg.Log.Outputs = nil
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Format != "console" || len(cfg.Log.Outputs) != 1 || cfg.Log.Outputs[0] != "stderr" {
		t.Errorf("Log: got %+v", cfg.Log)
	}
}
