// Package config loads, normalizes, and validates podsift's TOML
// configuration.
package config
