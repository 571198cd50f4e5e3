package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"shotdiff/internal/config"
	"shotdiff/internal/jobstatus"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SHOTDIFF_PUBLIC_BASE_URL", "")
	t.Setenv("SHOTDIFF_EXPIRY_THRESHOLD_MINUTES", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "shotdiff")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.AssetDir != filepath.Join(wantData, "assets") {
		t.Fatalf("unexpected asset dir: %q", cfg.Paths.AssetDir)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "shotdiff.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.LockPath() != filepath.Join(wantData, "shotdiff.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Assets.PublicBaseURL != "" {
		t.Fatalf("expected no public base url, got %q", cfg.Assets.PublicBaseURL)
	}
	if cfg.Diff.ReferenceBranch != "main" {
		t.Fatalf("unexpected reference branch: %q", cfg.Diff.ReferenceBranch)
	}
	policy := cfg.StatusPolicy()
	if policy.Threshold != 2*time.Hour || policy.Mode != jobstatus.ExpiryAdvisory {
		t.Fatalf("unexpected status policy: %+v", policy)
	}
	if cfg.Workflow.DiffWorkers != config.Default().Workflow.DiffWorkers {
		t.Fatalf("unexpected diff workers: %d", cfg.Workflow.DiffWorkers)
	}
}

func TestLoadHonoursEnvironmentFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SHOTDIFF_PUBLIC_BASE_URL", "https://cdn.example.test/shots/")
	t.Setenv("SHOTDIFF_EXPIRY_THRESHOLD_MINUTES", "15")
	t.Setenv("SHOTDIFF_API_TOKEN", " s3cret ")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Assets.PublicBaseURL != "https://cdn.example.test/shots" {
		t.Fatalf("expected trimmed env base url, got %q", cfg.Assets.PublicBaseURL)
	}
	if cfg.StatusPolicy().Threshold != 15*time.Minute {
		t.Fatalf("expected env threshold, got %s", cfg.StatusPolicy().Threshold)
	}
	if cfg.Paths.APIToken != "s3cret" {
		t.Fatalf("expected env api token, got %q", cfg.Paths.APIToken)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SHOTDIFF_PUBLIC_BASE_URL", "")
	t.Setenv("SHOTDIFF_EXPIRY_THRESHOLD_MINUTES", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`data_dir = "~/shots"`,
		`api_bind = "0.0.0.0:9000"`,
		"[workflow]",
		"diff_workers = 8",
		"[status]",
		"expiry_threshold_minutes = 30",
		`expiry_mode = "VETO"`,
		"[diff]",
		"channel_tolerance = 3",
		`reference_branch = "trunk"`,
		"[logging]",
		`format = "JSON"`,
	}, "\n")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected explicit config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "shots") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.APIBind != "0.0.0.0:9000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Workflow.DiffWorkers != 8 {
		t.Fatalf("unexpected diff workers: %d", cfg.Workflow.DiffWorkers)
	}
	policy := cfg.StatusPolicy()
	if policy.Threshold != 30*time.Minute || policy.Mode != jobstatus.ExpiryVeto {
		t.Fatalf("unexpected policy: %+v", policy)
	}
	if cfg.Diff.ChannelTolerance != 3 || cfg.Diff.ReferenceBranch != "trunk" {
		t.Fatalf("unexpected diff config: %+v", cfg.Diff)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"workers", func(c *config.Config) { c.Workflow.DiffWorkers = 0 }, "workflow.diff_workers"},
		{"threshold", func(c *config.Config) { c.Status.ExpiryThresholdMinutes = 0 }, "status.expiry_threshold_minutes"},
		{"mode", func(c *config.Config) { c.Status.ExpiryMode = "strict" }, "status.expiry_mode"},
		{"tolerance", func(c *config.Config) { c.Diff.ChannelTolerance = 300 }, "diff.channel_tolerance"},
		{"base url", func(c *config.Config) { c.Assets.PublicBaseURL = "cdn/shots" }, "assets.public_base_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigParsesAndValidates(t *testing.T) {
	var cfg config.Config
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
	defaults := config.Default()
	if cfg.Workflow != defaults.Workflow || cfg.Status != defaults.Status || cfg.Diff != defaults.Diff {
		t.Fatalf("sample config drifted from defaults: %+v", cfg)
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if string(data) != config.SampleConfig() {
		t.Fatal("sample file content mismatch")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.AssetDir = filepath.Join(base, "assets")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.AssetDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
