package config

import "time"

// Config holds runtime settings for the charasync client.
//
// Durations are time.Duration values; the JSON file and the environment
// accept Go duration strings such as "3s".
type Config struct {
	ServerEndpointAddr  string        `env:"CHARASYNC_SERVER_ADDR"`
	OnlineCheckInterval time.Duration `env:"CHARASYNC_ONLINE_CHECK_INTERVAL"`
	DatabasePath        string        `env:"CHARASYNC_DB_PATH"`
	CacheDir            string        `env:"CHARASYNC_CACHE_DIR"`
	LogLevel            string        `env:"CHARASYNC_LOG_LEVEL"`

	RefreshCooldown  time.Duration `env:"CHARASYNC_REFRESH_COOLDOWN"`
	CreateCooldown   time.Duration `env:"CHARASYNC_CREATE_COOLDOWN"`
	OperationTimeout time.Duration `env:"CHARASYNC_OPERATION_TIMEOUT"`
	SaveQueueDepth   int           `env:"CHARASYNC_SAVE_QUEUE_DEPTH"`

	NearbyRadius        float64       `env:"CHARASYNC_NEARBY_RADIUS"`
	NearbyTick          time.Duration `env:"CHARASYNC_NEARBY_TICK"`
	NearbyIgnoreHousing bool          `env:"CHARASYNC_NEARBY_IGNORE_HOUSING"`
	NearbyIncludeOwn    bool          `env:"CHARASYNC_NEARBY_INCLUDE_OWN"`
	NearbyBackground    bool          `env:"CHARASYNC_NEARBY_BACKGROUND"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "charasync.db"
	c.CacheDir = "filecache"
	c.LogLevel = "info"
	c.RefreshCooldown = 30 * time.Second
	c.CreateCooldown = 10 * time.Second
	c.OperationTimeout = 5 * time.Minute
	c.SaveQueueDepth = 4
	c.NearbyRadius = 50
	c.NearbyTick = time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), environment variables and command-line flags. Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg, nil)
	parseFlags(cfg)
	return cfg
}
