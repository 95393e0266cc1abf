// Package config handles configuration loading for heartline-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from HEARTLINE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/heartline/gateway.yaml
//  3. ~/.config/heartline/gateway.yaml
//
// Files ending in .toml are decoded as TOML; everything else is YAML. Both
// formats use the same keys.
//
// # Environment Variables
//
// Values can reference the environment with ${VAR_NAME}:
//
//	auth:
//	  jwt_secret: "${HEARTLINE_JWT_SECRET}"
//
// HEARTLINE_DB_PATH overrides database.path after the file is read.
//
// # Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  shutdown_timeout: "10s"
//	  allowed_origins: []          # empty allows any websocket origin
//
//	database:
//	  path: "/var/lib/heartline/gateway.db"
//
//	auth:
//	  jwt_secret: "${HEARTLINE_JWT_SECRET}"   # empty enables insecure dev auth
//	  token_ttl: "168h"
//
//	realtime:
//	  send_buffer: 256
//	  write_wait: "10s"
//	  pong_wait: "60s"
//	  max_message_size: 65536
//	  max_content_length: 4096
//	  send_rate: 5                 # messages per second, 0 disables
//	  send_burst: 10
//	  dedupe_ttl: "10m"
//	  dedupe_max: 10000
//	  persist_groups: true
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//	  namespace: "heartline"
//
// Durations use time.ParseDuration syntax.
package config
