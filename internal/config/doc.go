// Package config loads, normalizes, and validates Parley's TOML configuration.
package config
