// Package config provides configuration loading and validation for the sleep
// diagnosis service. It handles YAML-based configuration layered over
// built-in defaults, with per-section validation.
package config
