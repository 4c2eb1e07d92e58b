// Command fetch queries quotes from the command line through the same
// batched pipeline the server uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/subcommands"

	"portfoliodash/internal/app"
	"portfoliodash/internal/config"
)

var (
	configPath = flag.String("config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	timeout    = flag.Duration("timeout", 15*time.Second, "overall request timeout")
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&quotesCmd{}, "")
	commander.Register(&quoteCmd{}, "")
	commander.Register(&summaryCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// load builds the pipeline from the -config file and the environment.
func load() (*app.App, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return app.New(cfg, nil, nil)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
