package main

import (
	"github.com/dyso-testbed/dyso/collab"
	"github.com/urfave/cli/v2"
)

func init() {
	var pidFile string
	defineCommand(&cli.Command{
		Name:  "terminate",
		Usage: "Terminate collaborator processes recorded by a previous run",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "pidfile",
				Usage:       "PID `FILE`, default from run configuration",
				Destination: &pidFile,
			},
		},
		Action: func(c *cli.Context) error {
			if pidFile == "" {
				pidFile = cfg.PidFile
			}
			return collab.TerminateRecorded(c.Context, pidFile, cfg.KillGrace.Duration())
		},
	})
}
