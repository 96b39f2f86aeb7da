package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/dyso-testbed/dyso/app/dyso"
	"github.com/dyso-testbed/dyso/core/nnduration"
	"github.com/kballard/go-shellquote"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func init() {
	var cmdout bool
	defineCommand(&cli.Command{
		Name:  "run",
		Usage: "Run an experiment: bring up the testbed, drift the query key offset, then wind down",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "interval-size",
				Usage: "seconds between offset updates",
			},
			&cli.Uint64Flag{
				Name:  "offset-size",
				Usage: "offset increment per update",
			},
			&cli.Uint64Flag{
				Name:  "total-duration",
				Usage: "seconds of offset drift",
			},
			&cli.StringFlag{
				Name:  "privilege",
				Usage: "privilege escalation command `PREFIX`, such as 'sudo -n'",
			},
			&cli.BoolFlag{
				Name:        "cmdout",
				Usage:       "print command lines instead of executing",
				Destination: &cmdout,
			},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("interval-size") {
				cfg.Drift.IntervalSize = nnduration.Seconds(c.Uint64("interval-size"))
			}
			if c.IsSet("offset-size") {
				cfg.Drift.OffsetSize = c.Uint64("offset-size")
			}
			if c.IsSet("total-duration") {
				cfg.Drift.TotalDuration = nnduration.Seconds(c.Uint64("total-duration"))
			}
			if c.IsSet("privilege") {
				cfg.Privilege = c.String("privilege")
			}

			if cmdout {
				return printPlan(os.Stdout, cfg)
			}

			d, e := dyso.New(cfg, dyso.Options{})
			if e != nil {
				return e
			}
			d.OnPhase(func(phase dyso.Phase) {
				switch phase {
				case dyso.PhaseSteadyState:
					daemon.SdNotify(false, daemon.SdNotifyReady)
				case dyso.PhaseWindDown:
					daemon.SdNotify(false, daemon.SdNotifyStopping)
				}
			})

			ctx, stop := signal.NotifyContext(c.Context, unix.SIGINT, unix.SIGTERM)
			defer stop()

			run, e := d.Run(ctx)
			if ctx.Err() != nil {
				logger.Warn("run interrupted by signal", zap.Stringer("failed-phase", run.FailedPhase))
			}
			printJSON(run)
			return e
		},
	})
}

// printPlan prints the shell commands equivalent to a run.
func printPlan(w io.Writer, cfg dyso.Config) error {
	printCommand := func(argv []string, background bool) {
		line := shellquote.Join(argv...)
		if background {
			line += " &"
		}
		fmt.Fprintln(w, line)
	}

	for _, cmd := range cfg.Prepare {
		argv, e := cmd.Argv(cfg.Privilege)
		if e != nil {
			return e
		}
		printCommand(argv, false)
	}
	for _, step := range cfg.Collaborators {
		list, e := step.Argv(cfg.Privilege)
		if e != nil {
			return e
		}
		for _, argv := range list {
			printCommand(argv, true)
		}
		printCommand([]string{"sleep", strconv.FormatUint(uint64(step.Settle), 10)}, false)
	}
	for _, cmd := range cfg.Setup {
		argv, e := cmd.Argv(cfg.Privilege)
		if e != nil {
			return e
		}
		printCommand(argv, false)
	}

	self := []string{"dysoctl", "--endpoint", cfg.Endpoint}
	printCommand(append(self, "pktgen-config", "--app", "all"), false)
	if cfg.ConfirmTraffic {
		printCommand([]string{"read", "-r", "-p", "Press Enter to start packet generators", "_"}, false)
	}
	printCommand(append(self, "pktgen-enable", "--app", "all"), false)
	interval := strconv.FormatUint(uint64(cfg.Drift.IntervalSize), 10)
	for round := 1; round <= cfg.Drift.Ticks(); round++ {
		offset := strconv.FormatUint(uint64(round)*cfg.Drift.OffsetSize, 10)
		printCommand([]string{"sleep", interval}, false)
		printCommand(append(self, "set-offset", "--offset", offset), false)
	}
	printCommand([]string{"sleep", cfg.Drain.Duration().String()}, false)
	printCommand(append(self, "pktgen-disable", "--app", "all"), false)
	printCommand(append(self, "terminate"), false)
	return nil
}
