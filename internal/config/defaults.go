package config

import "github.com/spf13/viper"

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Client defaults
	v.SetDefault("client.base_url", "")
	v.SetDefault("client.token", "")
	v.SetDefault("client.auth_scheme", "Bearer")
	v.SetDefault("client.user_agent", "volscan (https://github.com/volscan/volscan)")
	v.SetDefault("client.acquire_timeout", "25s")
	v.SetDefault("client.request_timeout", "9500ms")
	v.SetDefault("client.dial_timeout", "10s")
	v.SetDefault("client.reconnect_delay", "150ms")
	v.SetDefault("client.max_reconnect_tries", 3)
	v.SetDefault("client.max_redirects", 5)
	v.SetDefault("client.max_rate_limit_retries", 5)
	v.SetDefault("client.insecure_skip_verify", false)
	v.SetDefault("client.persist_buckets", true)
	v.SetDefault("client.journal", true)
	v.SetDefault("client.journal_retention", "168h")

	// FRED defaults
	v.SetDefault("fred.base_url", "https://api.stlouisfed.org")
	v.SetDefault("fred.api_key", "")
	v.SetDefault("fred.series", "SOFR")
	v.SetDefault("fred.workload_type", "fred")

	// Watch defaults
	v.SetDefault("watch.file", "watchlist.json")
	v.SetDefault("watch.workload_type", "chains")
	v.SetDefault("watch.path_template", "/v1/markets/options/chains?symbol={ticker}&expiration={date}&greeks=true")
	v.SetDefault("watch.interval", "1m")
	v.SetDefault("watch.rate", 2.0)
	v.SetDefault("watch.burst", 1)
	v.SetDefault("watch.market_hours_only", true)

	// Worker defaults
	v.SetDefault("workers", 4)
}
