package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   path of the shared database file
//	-i int      change-log poll interval in seconds
//	-l string   log level
//
// Arguments are filtered through flagx.FilterArgs first, so -c and unknown
// flags do not reach this flag set.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, "d", "i", "l")

	fs := flag.NewFlagSet("gophchat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the shared database file")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug, info, warn, error)")
	interval := fs.Int("i", int(cfg.WatchInterval.Seconds()), "change poll interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			cfg.WatchInterval = time.Duration(*interval) * time.Second
		}
	})
	return nil
}
