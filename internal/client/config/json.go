package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/charasync/internal/flagx"
	"github.com/dmitrijs2005/charasync/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Pointer fields tell
// an absent key from a zero value, so only keys present in the file
// override earlier sources.
type JsonConfig struct {
	ServerEndpointAddr  *string         `json:"server_endpoint_addr"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	DatabasePath        *string         `json:"database_path"`
	CacheDir            *string         `json:"cache_dir"`
	LogLevel            *string         `json:"log_level"`
	RefreshCooldown     *timex.Duration `json:"refresh_cooldown"`
	CreateCooldown      *timex.Duration `json:"create_cooldown"`
	OperationTimeout    *timex.Duration `json:"operation_timeout"`
	SaveQueueDepth      *int            `json:"save_queue_depth"`
	NearbyRadius        *float64        `json:"nearby_radius"`
	NearbyTick          *timex.Duration `json:"nearby_tick"`
	NearbyIgnoreHousing *bool           `json:"nearby_ignore_housing"`
	NearbyIncludeOwn    *bool           `json:"nearby_include_own"`
	NearbyBackground    *bool           `json:"nearby_background"`
}

// parseJson overlays cfg with the file named by -c / -config. Without the
// flag nothing is loaded. Read and decode errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	set(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	set(&cfg.DatabasePath, jc.DatabasePath)
	set(&cfg.CacheDir, jc.CacheDir)
	set(&cfg.LogLevel, jc.LogLevel)
	set(&cfg.SaveQueueDepth, jc.SaveQueueDepth)
	set(&cfg.NearbyRadius, jc.NearbyRadius)
	set(&cfg.NearbyIgnoreHousing, jc.NearbyIgnoreHousing)
	set(&cfg.NearbyIncludeOwn, jc.NearbyIncludeOwn)
	set(&cfg.NearbyBackground, jc.NearbyBackground)

	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.RefreshCooldown, jc.RefreshCooldown)
	setDuration(&cfg.CreateCooldown, jc.CreateCooldown)
	setDuration(&cfg.OperationTimeout, jc.OperationTimeout)
	setDuration(&cfg.NearbyTick, jc.NearbyTick)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
