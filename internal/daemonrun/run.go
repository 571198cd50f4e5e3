package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"shotdiff/internal/assets"
	"shotdiff/internal/buildjob"
	"shotdiff/internal/config"
	"shotdiff/internal/daemon"
	"shotdiff/internal/diffjob"
	"shotdiff/internal/imagediff"
	"shotdiff/internal/logging"
	"shotdiff/internal/store"
	"shotdiff/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the shotdiff daemon and blocks until the context is cancelled
// or the process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if err := os.MkdirAll(maskTempDir(cfg), 0o755); err != nil {
		return fmt.Errorf("create mask temp directory: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("shotdiff-%s.log", runID))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Paths.LogDir, "shotdiff-*.log", cfg.Logging.RetentionDays, logPath)

	pidPath := filepath.Join(cfg.Paths.LogDir, "shotdiff.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}

	as, err := assets.New(cfg.Paths.AssetDir, cfg.Assets.PublicBaseURL)
	if err != nil {
		st.Close()
		return fmt.Errorf("open asset store: %w", err)
	}

	manager := newManager(cfg, st, as, logger)
	d, err := daemon.New(cfg, st, as, manager, logger)
	if err != nil {
		st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("database", cfg.DatabasePath()),
		logging.String("asset_dir", cfg.Paths.AssetDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_present", cfg.Paths.APIToken != ""),
		logging.Int("diff_workers", cfg.Workflow.DiffWorkers),
		logging.String("expiry_mode", cfg.Status.ExpiryMode),
		logging.Int("expiry_threshold_minutes", cfg.Status.ExpiryThresholdMinutes),
		logging.String("reference_branch", cfg.Diff.ReferenceBranch),
	)

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file, database access and api_bind"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("shotdiff daemon shutting down")
	return nil
}

func newManager(cfg *config.Config, st *store.Store, as *assets.Store, logger *slog.Logger) *workflow.Manager {
	policy := cfg.StatusPolicy()
	builds := buildjob.New(st, buildjob.Options{
		ReferenceBranch: cfg.Diff.ReferenceBranch,
		Policy:          policy,
	}, logger)
	diffs := diffjob.New(st, as, diffjob.Options{
		Engine: imagediff.Options{
			ChannelTolerance: uint8(cfg.Diff.ChannelTolerance),
			TempDir:          maskTempDir(cfg),
		},
		Policy: policy,
	}, logger)
	return workflow.NewManager(cfg, st, builds, diffs, logger)
}

// maskTempDir holds mask files between rendering and asset storage.
func maskTempDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "tmp")
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
