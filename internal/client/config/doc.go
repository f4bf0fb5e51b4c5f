// Package config loads runtime configuration for the charasync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. CHARASYNC_* environment variables.
//  4. Command-line flags, which override everything else.
//
// # JSON schema
//
// Durations are strings like "3s" or integer nanoseconds; keys left out of
// the file keep their earlier value:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "database_path": "charasync.db",
//	  "cache_dir": "filecache",
//	  "refresh_cooldown": "30s",
//	  "nearby_radius": 50
//	}
package config
