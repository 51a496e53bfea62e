package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/exius/internal/flagx"
)

const envServerURL = "EXIUS_SERVER_URL"

func parseEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envServerURL)); v != "" {
		cfg.ServerURL = v
	}
}

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   base URL of the relay server
//	-t int      request timeout (in seconds)
//
// Only these flags are picked out of os.Args, so subcommands can parse
// the rest with their own flag sets.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the relay server")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
