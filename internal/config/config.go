// Package config defines the harness's CLI-driven configuration.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Config holds the fully parsed command-line configuration for one run.
type Config struct {
	BasePort   int
	WriteDir   string
	ListenAddr string
	Hostname   string
	Sequential bool
	Verbose    bool
}

// Defaults returns a Config populated with every flag's documented default.
func Defaults() *Config {
	return &Config{
		ListenAddr: "localhost",
		Hostname:   "localhost.localdomain",
	}
}

// BindFlags registers the harness's command-line flags on fs, writing
// parsed values into cfg.
func (cfg *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&cfg.BasePort, "base-port", 0, "Port for the HTTP directory; baseline for sequential MAPI ports (required)")
	fs.StringVar(&cfg.WriteDir, "write", "", "Also persist every artifact to DIR")
	fs.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "Bind interface for all listeners")
	fs.StringVar(&cfg.Hostname, "hostname", cfg.Hostname, "CN and SAN value for all leaf certificates")
	fs.BoolVar(&cfg.Sequential, "sequential", false, "Select sequential port allocation")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Raise log verbosity")
}

// Validate enforces that --base-port was supplied. fs.Changed reports
// whether the flag was set on the command line, so a literal
// "--base-port 0" is accepted while an omitted flag is not.
func (cfg *Config) Validate(fs *pflag.FlagSet) error {
	if !fs.Changed("base-port") {
		return fmt.Errorf("config: --base-port is required")
	}
	return nil
}
