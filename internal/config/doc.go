// Package config handles configuration loading for pnm-store.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PNM_STORE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/pnm/store.yaml
//  3. ~/.config/pnm/store.yaml
//
// Files ending in .toml are read as TOML; everything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	storage:
//	  redis_url: "${PNM_REDIS_URL}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Storage:
//
//	storage:
//	  engine: sqlite                         # sqlite, redis, memory
//	  dir: "${HOME}/.local/share/pnm/stores" # sqlite only
//	  driver: sqlite                         # sqlite (pure Go), sqlite3 (cgo)
//	  redis_url: "redis://localhost:6379/0"  # redis only
//	  redis_namespace: "pnm:"                # redis only
//
// Cleanup:
//
//	retention: "6h"   # idle time before a session database is deleted
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Empty fields take the defaults shown above.
package config
