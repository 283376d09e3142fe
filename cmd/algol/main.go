package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "algol",
		Usage: "Run and exercise the in-process algol messaging broker",
		Commands: []*cli.Command{
			{
				Name:   "smoke",
				Usage:  "Publish a batch of payloads followed by quit, consume them and verify order",
				Flags:  smokeFlags(),
				Action: smoke,
			},
			{
				Name:   "bench",
				Usage:  "Publish from several concurrent publishers into one queue and verify per-publisher order",
				Flags:  benchFlags(),
				Action: bench,
			},
			{
				Name:   "serve",
				Usage:  "Run a broker with metrics, queue sampling and backlog warnings until interrupted",
				Flags:  serveFlags(),
				Action: serve,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
