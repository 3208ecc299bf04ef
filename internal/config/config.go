// Package config loads the server configuration: built-in defaults, then an
// optional TOML file, then BUCKETKV_* environment overrides.
package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "BUCKETKV_"

type Config struct {
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Store    StoreConfig    `toml:"store" mapstructure:"store"`
	Protocol ProtocolConfig `toml:"protocol" mapstructure:"protocol"`
	Admin    AdminConfig    `toml:"admin" mapstructure:"admin"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
	// Workers is the size of the pool that pops connections off the queue
	Workers int `toml:"workers" mapstructure:"workers"`
	// QueueWarn logs a warning when this many connections wait for a worker.
	// Zero disables the warning.
	QueueWarn int `toml:"queue_warn" mapstructure:"queue_warn"`
	// IdleTimeout closes a connection that sends nothing for this long.
	// Zero means no timeout.
	IdleTimeout time.Duration `toml:"idle_timeout" mapstructure:"idle_timeout"`
}

type StoreConfig struct {
	Kind    string `toml:"kind" mapstructure:"kind"` // "sharded" or "simple"
	Buckets int    `toml:"buckets" mapstructure:"buckets"`
}

type ProtocolConfig struct {
	Codec    string `toml:"codec" mapstructure:"codec"` // "cbor", "json" or "proto"
	MaxFrame int    `toml:"max_frame" mapstructure:"max_frame"`
}

type AdminConfig struct {
	// Listen is the HTTP address for /health, /info, /keys and /metrics.
	// Empty disables the admin server.
	Listen string `toml:"listen" mapstructure:"listen"`
}

// LogConfig defines logger settings
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `toml:"level" mapstructure:"level"`
	// Format: console or json
	Format string `toml:"format" mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `toml:"outputs" mapstructure:"outputs"`
	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `toml:"rotation" mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `toml:"development" mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs
type RotationConfig struct {
	Enable     bool `toml:"enable" mapstructure:"enable"`
	MaxSizeMB  int  `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int  `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool `toml:"compress" mapstructure:"compress"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:    "127.0.0.1:7070",
			Workers:   8,
			QueueWarn: 128,
		},
		Store: StoreConfig{
			Kind:    "sharded",
			Buckets: 64,
		},
		Protocol: ProtocolConfig{
			Codec:    "cbor",
			MaxFrame: 4 << 20,
		},
		Admin: AdminConfig{
			Listen: "127.0.0.1:7071",
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load builds the configuration. If path is empty only defaults and the
// environment apply. The result has been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading config")
		}
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errors.Wrap(err, "parsing config")
		}
	}

	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayEnv applies BUCKETKV_* variables on top of c. Every field is
// seeded into viper under its dotted key, so BUCKETKV_LOG_ROTATION_MAX_SIZE_MB
// overrides log.rotation.max_size_mb.
func (c *Config) overlayEnv() error {
	v := envViper(c)
	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return errors.Wrap(err, "applying environment")
	}
	*c = out
	return nil
}

// envViper returns a viper instance whose defaults are the fields of c and
// which reads overrides from the environment
func envViper(c *Config) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(strings.TrimSuffix(EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	seedDefaults(v, "", reflect.ValueOf(c).Elem())
	return v
}

var durationType = reflect.TypeOf(time.Duration(0))

// seedDefaults registers every leaf field of the struct val, keyed by its
// mapstructure tags joined with dots
func seedDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("mapstructure")
		if name == "" {
			continue
		}
		f := val.Field(i)
		if f.Kind() == reflect.Struct && f.Type() != durationType {
			seedDefaults(v, prefix+name+".", f)
			continue
		}
		v.SetDefault(prefix+name, f.Interface())
	}
}
