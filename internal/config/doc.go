// Package config handles configuration loading for coven-bot.
//
// # Configuration File
//
// Locations, in order:
//
//  1. The --config flag
//  2. Path from the COVEN_BOT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/coven/bot.yaml (~/.config/coven/bot.yaml)
//
// Files ending in .toml are parsed as TOML; .yaml, .yml and extensionless
// files as YAML.
//
// # Example
//
//	bot:
//	  protocol: "oicq-webapi"
//	http:
//	  host: "127.0.0.1"
//	  port: 8888
//	  request_timeout: "30s"
//	ws:
//	  path: "/"
//	  reconnect_interval: "10s"
//	runtime:
//	  drain_timeout: "30s"
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// The ws host, port and tls settings default to the http ones.
//
// # Environment
//
// ${VAR_NAME} references are expanded before parsing. After parsing, these
// variables override file values when set:
//
//	COVEN_BOT_PROTOCOL
//	COVEN_BOT_HTTP_HOST, COVEN_BOT_HTTP_PORT
//	COVEN_BOT_WS_HOST, COVEN_BOT_WS_PORT
//	COVEN_BOT_LOG_LEVEL, COVEN_BOT_LOG_FORMAT
package config
