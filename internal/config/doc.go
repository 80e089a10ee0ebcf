// Package config loads, normalizes, and validates bdrtools configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the BDR_BASE_URL environment
// fallback. Defaults alone form a valid configuration, so every command
// runs without a config file present.
package config
