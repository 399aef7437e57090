package main

import (
	"context"
	"os"

	"github.com/avramelo/spinstats/internal/services"
	"github.com/avramelo/spinstats/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		loaded, err := shared.LoadConfig("config.toml")
		if err != nil {
			logger.Warn("ignoring config file", "path", "config.toml", "err", err)
		} else {
			config = loaded
		}
	}

	service := services.NewSpotifyService(services.SpotifyOpts{})

	runner := NewRunner(RunnerOpts{
		Config:  config,
		Service: service,
		Logger:  logger,
	})

	app := &cli.Command{
		Name:     "spinstats",
		Usage:    "Spotify listening stats, album brackets & playlist builder",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
