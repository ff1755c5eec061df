/*
Package config loads the validated configuration snapshot the core reads at
daemon start (spec.md §6.5): general toggles, compilation thresholds and
timeouts, transfer options, selection weights and strategy, self-healing
flags, and the worker list.

Precedence, highest first: command-line flags, environment variables, a
named profile file, a project-local .env, a project override file, the
user's config file, built-in defaults. Load merges the file layers with
gopkg.in/yaml.v3, then applies environment overrides, then flag overrides
supplied by the caller. The result is a plain Config value; nothing in
pkg/daemon, pkg/classify, pkg/orchestrator, or pkg/hook parses YAML or reads
the environment itself. This package does no hot-reload and no schema
generation; it reads once at process start.
*/
package config
