package config

import (
	"errors"
	"fmt"
	"net"

	"loadboard/internal/orders"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.APIBind); err != nil {
		return fmt.Errorf("server.api_bind %q: %w", c.Server.APIBind, err)
	}
	if c.Server.EventBuffer < 16 {
		return errors.New("server.event_buffer must be at least 16")
	}
	return nil
}

func (c *Config) validateSync() error {
	s := c.Sync
	if s.ResyncIntervalMS <= 0 {
		return errors.New("sync.resync_interval_ms must be positive")
	}
	if s.DebounceMS <= 0 {
		return errors.New("sync.debounce_ms must be positive")
	}
	if s.GraceMS <= 0 {
		return errors.New("sync.grace_ms must be positive")
	}
	if s.PendingTTLMS <= 0 {
		return errors.New("sync.pending_ttl_ms must be positive")
	}
	if s.GraceMS >= s.PendingTTLMS {
		return errors.New("sync.grace_ms must be shorter than sync.pending_ttl_ms")
	}
	if s.DebounceMS >= s.ResyncIntervalMS {
		return errors.New("sync.debounce_ms must be shorter than sync.resync_interval_ms")
	}
	if s.BurstThreshold < 1 {
		return errors.New("sync.burst_threshold must be at least 1")
	}
	for _, state := range s.TrackedStates {
		parsed, ok := orders.ParseState(state)
		if !ok {
			return fmt.Errorf("sync.tracked_states: unknown workflow state %q", state)
		}
		if parsed == orders.StateQueued || parsed == orders.StateUnassigned {
			return fmt.Errorf("sync.tracked_states: %q is already covered by the queued/unqueued fetches", state)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
