// Package config loads layered application configuration: defaults, an
// optional YAML file, and BYBIT_-prefixed environment variables on top. It
// also centralizes the filesystem layout (staging, archive, logs) so no
// other package invents paths.
package config
