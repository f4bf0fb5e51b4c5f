package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/charasync/internal/flagx"
)

var knownFlags = []string{"-a", "-i", "-db", "-cache", "-l", "-t", "-q", "-radius", "-housing", "-own", "-bg"}

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string    address and port of the backend server
//	-i int       online check interval in seconds
//	-db string   local database path
//	-cache dir   content-addressed file cache directory
//	-l string    log level
//	-t int       operation timeout in seconds
//	-q int       queued saves allowed per record
//	-radius f    nearby discovery radius
//	-housing     ignore housing coordinates in nearby discovery
//	-own         include own poses in nearby discovery
//	-bg          keep nearby discovery running while hidden
//
// os.Args is filtered with flagx.FilterArgs first so flags owned by other
// components do not break parsing.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.CacheDir, "cache", cfg.CacheDir, "file cache directory")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	opTimeout := fs.Int("t", int(cfg.OperationTimeout.Seconds()), "operation timeout (in seconds)")
	fs.IntVar(&cfg.SaveQueueDepth, "q", cfg.SaveQueueDepth, "queued saves per record")
	fs.Float64Var(&cfg.NearbyRadius, "radius", cfg.NearbyRadius, "nearby discovery radius")
	fs.BoolVar(&cfg.NearbyIgnoreHousing, "housing", cfg.NearbyIgnoreHousing, "ignore housing limitations")
	fs.BoolVar(&cfg.NearbyIncludeOwn, "own", cfg.NearbyIncludeOwn, "include own poses")
	fs.BoolVar(&cfg.NearbyBackground, "bg", cfg.NearbyBackground, "refresh nearby poses in the background")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.OperationTimeout = time.Duration(*opTimeout) * time.Second
}
