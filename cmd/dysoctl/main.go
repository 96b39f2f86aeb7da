// Command dysoctl orchestrates the DySO testbed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/dyso-testbed/dyso/app/dyso"
	"github.com/dyso-testbed/dyso/bfrt"
	"github.com/dyso-testbed/dyso/core/logging"
	"github.com/dyso-testbed/dyso/core/version"
	"github.com/dyso-testbed/dyso/core/yamlflag"
	"github.com/urfave/cli/v2"
)

var logger = logging.New("main")

var (
	cfg      = dyso.DefaultConfig()
	endpoint string
)

var app = &cli.App{
	Version: version.V.String(),
	Usage:   "Orchestrate DySO testbed experiments.",
	Flags: []cli.Flag{
		&cli.GenericFlag{
			Name:        "config",
			Usage:       "run configuration, YAML document or @`FILE`",
			Value:       yamlflag.NewWithSchema(&cfg, dyso.ConfigSchema),
			DefaultText: "DySO testbed",
		},
		&cli.StringFlag{
			Name:        "endpoint",
			Usage:       "switch control service `URI`, overrides configuration",
			EnvVars:     []string{"DYSO_ENDPOINT"},
			Destination: &endpoint,
		},
	},
	Before: func(c *cli.Context) error {
		if endpoint != "" {
			cfg.Endpoint = endpoint
		}
		return nil
	},
	After: func(c *cli.Context) error {
		logging.Sync()
		return nil
	},
}

func defineCommand(command *cli.Command) {
	app.Commands = append(app.Commands, command)
}

func openSession(ctx context.Context) (*bfrt.Session, error) {
	return bfrt.Connect(ctx, cfg.Endpoint, cfg.BfrtOptions())
}

func printJSON(value any) error {
	j, e := json.MarshalIndent(value, "", "  ")
	if e != nil {
		return e
	}
	fmt.Println(string(j))
	return nil
}

func main() {
	sort.Sort(cli.CommandsByName(app.Commands))
	e := app.Run(os.Args)
	if e != nil {
		log.Fatal(e)
	}
}

func init() {
	defineCommand(&cli.Command{
		Name:  "show-version",
		Usage: "Show version",
		Action: func(c *cli.Context) error {
			return printJSON(version.V)
		},
	})
}

func init() {
	defineCommand(&cli.Command{
		Name:  "show-config",
		Usage: "Show effective run configuration",
		Action: func(c *cli.Context) error {
			return printJSON(cfg)
		},
	})
}
