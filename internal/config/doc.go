// Package config loads, normalizes, and validates smoothbdr configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SMOOTHBDR_LEDGER_DSN. Per-stage tables under [stages.<name>] only carry
// overrides; StageSettings resolves them against the [workflow] defaults so
// workers receive complete timing and retry settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
