// Package config loads, normalizes, and validates shotdiff configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SHOTDIFF_PUBLIC_BASE_URL and SHOTDIFF_EXPIRY_THRESHOLD_MINUTES. The Config
// type centralizes every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
