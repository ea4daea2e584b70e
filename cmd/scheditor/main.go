package main

import (
	"os"

	"github.com/urfave/cli/v2"

	appLog "scheditor/internal/log"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "scheditor",
		Usage:   "Event editor backend: editing sessions, event collection and ICS feeds.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "/etc/scheditor/config.yaml", Usage: "Path to config file"},
			&cli.StringSliceFlag{Name: "env", Usage: "Load environment variables from these .env files"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			fieldsCommand(),
			occurrencesCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		appLog.Error("scheditor failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Sync()
}
