// Package config loads, normalizes, and validates loadboard configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the LOADBOARD_API_BIND environment
// fallback. The Config type covers the reference server (bind address, event
// buffer) and the reconciliation engine's timing windows, so the daemon and the
// CLI clients agree on one set of knobs.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
