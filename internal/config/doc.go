// Package config loads busdecode TOML configuration.
//
// Ownership boundary:
// - file shape and defaults
// - overlay of defined keys onto defaults
// - validation and template rendering
package config
