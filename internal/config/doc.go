// Package config loads the storefront client configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/storefront/config.toml (default)
//  3. If the config file doesn't exist, fall back to hardcoded defaults
//  4. STOREFRONT_* environment variables override file values
//  5. The merged Config is validated before it is returned
//
// # Default Values
//
//   - API base URL: http://localhost:3000/api/v1
//   - Request timeout: 10s
//   - Revalidation poll: 30s
//   - Quantity throttle window: 500ms
//   - Log file: ~/.local/state/storefront/storefront.log
//   - Preferences backend: file (~/.local/state/storefront/state.toml)
//
// # TOML Format
//
//	api_url = "https://shop.example.com/api/v1"
//	request_timeout = "10s"
//	poll_interval = "30s"
//	throttle_interval = "500ms"
//	log_level = "info"
//	metrics_addr = "127.0.0.1:9464"
//
//	[prefs]
//	backend = "redis"          # file | memory | redis
//	redis_addr = "127.0.0.1:6379"
//	namespace = "kiosk-3"
//
// # Environment
//
//   - STOREFRONT_API_URL
//   - STOREFRONT_LOG_LEVEL, STOREFRONT_LOG_FILE
//   - STOREFRONT_PREFS_BACKEND, STOREFRONT_REDIS_ADDR
//   - STOREFRONT_METRICS_ADDR
//   - STOREFRONT_POLL_INTERVAL
//
// Missing config files are NOT an error. A file that exists but fails to
// parse, or a merged config that fails validation, is.
package config
