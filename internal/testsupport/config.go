package testsupport

import (
	"path/filepath"
	"testing"

	"loadboard/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.APIBind = "127.0.0.1:0"
	cfgVal.Server.EventBuffer = 64

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithEventBuffer overrides the per-topic broadcast buffer.
func WithEventBuffer(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.EventBuffer = n
	}
}

// WithSyncWindows overrides the grace, pending TTL and debounce windows (milliseconds).
func WithSyncWindows(graceMS, ttlMS, debounceMS int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.GraceMS = graceMS
		b.cfg.Sync.PendingTTLMS = ttlMS
		b.cfg.Sync.DebounceMS = debounceMS
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
