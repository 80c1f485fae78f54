package config

import (
	"flag"
	"os"
	"time"

	"github.com/pkozlov/sentryvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-r string   storage root directory (default from Config)
//	-d string   SQLite DSN for the metadata store
//	-m string   path to the integrity manifest
//	-i int      integrity scan interval in seconds
//	-l string   log level (debug, info, warn, error)
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-r", "-d", "-m", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.StorageRoot, "r", cfg.StorageRoot, "storage root directory")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "metadata store DSN")
	fs.StringVar(&cfg.ManifestPath, "m", cfg.ManifestPath, "integrity manifest path")
	scanInterval := fs.Int("i", int(cfg.ScanInterval.Seconds()), "integrity scan interval (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.ScanInterval = time.Duration(*scanInterval) * time.Second
}
