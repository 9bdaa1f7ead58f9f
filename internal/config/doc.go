// ABOUTME: Package documentation for the config package.
// ABOUTME: Describes YAML loading, env expansion, and hot reload.

// Package config loads and validates the agentrelay YAML configuration:
// provider launch commands, orchestration timing, failover, database path,
// and logging. ${VAR} references are expanded from the environment, and an
// fsnotify-backed Watcher reloads the file on change.
package config
