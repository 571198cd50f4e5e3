package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"shotdiff/internal/jobstatus"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateStatus(); err != nil {
		return err
	}
	if err := c.validateDiff(); err != nil {
		return err
	}
	if err := c.validateAssets(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.diff_workers":         c.Workflow.DiffWorkers,
	})
}

func (c *Config) validateStatus() error {
	if c.Status.ExpiryThresholdMinutes <= 0 {
		return errors.New("status.expiry_threshold_minutes must be positive")
	}
	if _, err := jobstatus.ParseExpiryMode(c.Status.ExpiryMode); err != nil {
		return fmt.Errorf("status.expiry_mode: %w", err)
	}
	return nil
}

func (c *Config) validateDiff() error {
	if c.Diff.ChannelTolerance < 0 || c.Diff.ChannelTolerance > 255 {
		return errors.New("diff.channel_tolerance must be between 0 and 255")
	}
	return nil
}

func (c *Config) validateAssets() error {
	if c.Assets.PublicBaseURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Assets.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("assets.public_base_url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" || !strings.HasPrefix(parsed.Scheme, "http") {
		return fmt.Errorf("assets.public_base_url must be an absolute http(s) URL, got %q", c.Assets.PublicBaseURL)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
