// Package config loads registry configuration from environment variables
// with an optional YAML file overlay.
package config
