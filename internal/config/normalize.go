package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAssets()
	if err := c.normalizeStatus(); err != nil {
		return err
	}
	c.normalizeDiff()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if strings.TrimSpace(c.Paths.AssetDir) == "" {
		c.Paths.AssetDir = defaultAssetDir
	}
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.AssetDir, err = expandPath(c.Paths.AssetDir); err != nil {
		return fmt.Errorf("paths.asset_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if strings.TrimSpace(c.Paths.APIToken) == "" {
		c.Paths.APIToken = os.Getenv("SHOTDIFF_API_TOKEN")
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeAssets() {
	if strings.TrimSpace(c.Assets.PublicBaseURL) == "" {
		if value, ok := os.LookupEnv("SHOTDIFF_PUBLIC_BASE_URL"); ok {
			c.Assets.PublicBaseURL = value
		}
	}
	c.Assets.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Assets.PublicBaseURL), "/")
}

func (c *Config) normalizeStatus() error {
	if value, ok := os.LookupEnv("SHOTDIFF_EXPIRY_THRESHOLD_MINUTES"); ok && strings.TrimSpace(value) != "" {
		minutes, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("SHOTDIFF_EXPIRY_THRESHOLD_MINUTES: %w", err)
		}
		c.Status.ExpiryThresholdMinutes = minutes
	}
	c.Status.ExpiryMode = strings.ToLower(strings.TrimSpace(c.Status.ExpiryMode))
	if c.Status.ExpiryMode == "" {
		c.Status.ExpiryMode = defaultExpiryMode
	}
	return nil
}

func (c *Config) normalizeDiff() {
	c.Diff.ReferenceBranch = strings.TrimSpace(c.Diff.ReferenceBranch)
	if c.Diff.ReferenceBranch == "" {
		c.Diff.ReferenceBranch = defaultReferenceBranch
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
