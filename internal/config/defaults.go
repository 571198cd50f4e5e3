package config

const (
	defaultDataDir                = "~/.local/share/shotdiff"
	defaultLogDir                 = "~/.local/share/shotdiff/logs"
	defaultAssetDir               = "~/.local/share/shotdiff/assets"
	defaultAPIBind                = "127.0.0.1:7488"
	defaultQueuePollInterval      = 2
	defaultErrorRetryInterval     = 10
	defaultDiffWorkers            = 4
	defaultExpiryThresholdMinutes = 120
	defaultExpiryMode             = "advisory"
	defaultReferenceBranch        = "main"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			AssetDir: defaultAssetDir,
			APIBind:  defaultAPIBind,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			DiffWorkers:        defaultDiffWorkers,
		},
		Status: Status{
			ExpiryThresholdMinutes: defaultExpiryThresholdMinutes,
			ExpiryMode:             defaultExpiryMode,
		},
		Diff: Diff{
			ReferenceBranch: defaultReferenceBranch,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
