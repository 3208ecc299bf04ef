package config

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Validate checks the config and normalises case-insensitive fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return errors.New("server.listen must not be empty")
	}
	if c.Server.Workers < 1 {
		return errors.Newf("server.workers must be at least 1, got %d", c.Server.Workers)
	}
	if c.Server.QueueWarn < 0 {
		return errors.Newf("server.queue_warn must not be negative, got %d", c.Server.QueueWarn)
	}
	if c.Server.IdleTimeout < 0 {
		return errors.Newf("server.idle_timeout must not be negative, got %s", c.Server.IdleTimeout)
	}

	c.Store.Kind = strings.ToLower(strings.TrimSpace(c.Store.Kind))
	switch c.Store.Kind {
	case "sharded":
		if c.Store.Buckets < 1 {
			return errors.Newf("store.buckets must be at least 1, got %d", c.Store.Buckets)
		}
	case "simple":
	default:
		return errors.Newf("invalid store.kind: %q", c.Store.Kind)
	}

	c.Protocol.Codec = strings.ToLower(strings.TrimSpace(c.Protocol.Codec))
	switch c.Protocol.Codec {
	case "cbor", "json", "proto":
	default:
		return errors.Newf("invalid protocol.codec: %q", c.Protocol.Codec)
	}
	if c.Protocol.MaxFrame < 0 {
		return errors.Newf("protocol.max_frame must not be negative, got %d", c.Protocol.MaxFrame)
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Newf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	return nil
}
