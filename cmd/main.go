package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/meghashyamc/homeindex/api"
	"github.com/meghashyamc/homeindex/config"
	"github.com/meghashyamc/homeindex/services/search"
	"github.com/urfave/cli/v2"
)

func main() {
	godotenv.Load()

	app := &cli.App{
		Name:  "homeindex",
		Usage: "index and search the files on this machine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "config environment to load (config/config.<env>.yaml)",
				EnvVars: []string{"ENV"},
			},
		},
		Action: serveCommand,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the HTTP API",
				Action: serveCommand,
			},
			{
				Name:   "index",
				Usage:  "run one indexing pass and print the resulting statistics",
				Action: indexCommand,
			},
			{
				Name:      "search",
				Usage:     "search the last saved index",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "maximum number of results",
						Value:   search.DefaultSearchLimit,
					},
				},
			},
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("env"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	return api.Run(c.Context, cfg)
}
