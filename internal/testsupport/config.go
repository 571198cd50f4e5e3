package testsupport

import (
	"path/filepath"
	"testing"

	"shotdiff/internal/config"
	"shotdiff/internal/jobstatus"
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
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.AssetDir = filepath.Join(base, "assets")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithPublicBaseURL sets the asset public URL prefix.
func WithPublicBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Assets.PublicBaseURL = url
	}
}

// WithExpiryMode sets the status expiry mode.
func WithExpiryMode(mode jobstatus.ExpiryMode) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Status.ExpiryMode = string(mode)
	}
}

// WithDiffWorkers sets the number of diff workers.
func WithDiffWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.DiffWorkers = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
