package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/stylist/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
//	-a string     server base URL
//	-d string     path of the local state database
//	-t duration   per-request timeout
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server base URL")
	fs.StringVar(&cfg.StatePath, "d", cfg.StatePath, "local state database path")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "request timeout")

	return flagx.ParseKnown(fs, args)
}
