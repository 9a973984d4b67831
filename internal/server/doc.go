// Package server implements the HTTP API: recording uploads for analysis plus
// health, configuration and metrics endpoints.
package server
