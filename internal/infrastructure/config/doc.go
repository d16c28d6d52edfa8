// Package config loads and validates otacore configuration.
//
// Configuration is layered: hardcoded defaults, then the YAML file, then
// OTACORE_* environment variable overrides. Load returns a validated Config
// or an error describing every problem found.
package config
