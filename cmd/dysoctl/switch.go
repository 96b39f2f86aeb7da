package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dyso-testbed/dyso/pktgen"
	"github.com/dyso-testbed/dyso/pktgen/pktgendef"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

func init() {
	var offset uint64
	defineCommand(&cli.Command{
		Category: "switch",
		Name:     "set-offset",
		Usage:    "Write the query key offset register (offsetRegister in configuration)",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:        "offset",
				Usage:       "offset `VALUE`",
				Destination: &offset,
				Required:    true,
			},
		},
		Action: func(c *cli.Context) error {
			session, e := openSession(c.Context)
			if e != nil {
				return e
			}
			defer session.Close()

			return session.WriteRegister(c.Context, cfg.OffsetRegister, offset)
		},
	})
}

// selectGenerators returns configured generators matching a comma-separated list of "query", "control", "all", or app IDs.
func selectGenerators(apps string) (list []pktgen.Config, e error) {
	want := map[pktgendef.AppID]bool{}
	for _, token := range strings.Split(apps, ",") {
		switch token = strings.TrimSpace(token); token {
		case "all":
			for _, gen := range cfg.Generators {
				want[gen.AppID] = true
			}
		case pktgendef.AppQuery.String():
			want[pktgendef.AppQuery] = true
		case pktgendef.AppControl.String():
			want[pktgendef.AppControl] = true
		default:
			id, e := strconv.Atoi(token)
			if e != nil {
				return nil, fmt.Errorf("unknown app %q", token)
			}
			want[pktgendef.AppID(id)] = true
		}
	}

	for _, gen := range cfg.Generators {
		if want[gen.AppID] {
			list = append(list, gen)
			delete(want, gen.AppID)
		}
	}
	if len(want) > 0 {
		missing := []string{}
		for id := range want {
			missing = append(missing, id.String())
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("apps not configured: %s", strings.Join(missing, ", "))
	}
	return list, nil
}

func defineGeneratorCommand(name, usage string, action func(c *cli.Context, dev pktgendef.Device, list []pktgen.Config) error) {
	var apps string
	defineCommand(&cli.Command{
		Category: "switch",
		Name:     name,
		Usage:    usage,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "app",
				Usage:       "`APPS`: query, control, all, or comma-separated app IDs",
				Value:       "all",
				Destination: &apps,
			},
		},
		Action: func(c *cli.Context) error {
			list, e := selectGenerators(apps)
			if e != nil {
				return e
			}
			session, e := openSession(c.Context)
			if e != nil {
				return e
			}
			defer session.Close()
			return action(c, session, list)
		},
	})
}

func init() {
	defineGeneratorCommand("pktgen-config", "Configure packet generator applications",
		func(c *cli.Context, dev pktgendef.Device, list []pktgen.Config) error {
			bank := pktgen.NewBank(dev)
			for _, gen := range list {
				if _, e := bank.Configure(c.Context, gen); e != nil {
					return e
				}
			}
			return nil
		})
}

func init() {
	defineGeneratorCommand("pktgen-enable", "Enable packet generator applications",
		func(c *cli.Context, dev pktgendef.Device, list []pktgen.Config) error {
			for _, gen := range list {
				if e := dev.EnableApp(c.Context, gen.AppID); e != nil {
					return e
				}
			}
			return nil
		})
}

func init() {
	defineGeneratorCommand("pktgen-disable", "Disable packet generator applications",
		func(c *cli.Context, dev pktgendef.Device, list []pktgen.Config) error {
			errs := []error{}
			for _, gen := range list {
				errs = append(errs, dev.DisableApp(c.Context, gen.AppID))
			}
			return multierr.Combine(errs...)
		})
}
