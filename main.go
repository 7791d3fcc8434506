package main

import (
	"os"

	"github.com/achilleasa/polaris-cir/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "polaris-cir"
	app.Usage = "collect channel impulse response statistics from traced light paths"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.BoolFlag{
			Name:  "quiet, q",
			Usage: "disable logging",
		},
		cli.StringFlag{
			Name:  "log-file",
			Usage: "append log output to this file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "list-devices",
			Usage:  "list available compute devices",
			Action: cmd.ListDevices,
		},
		{
			Name:  "simulate",
			Usage: "simulate frames with synthetic tracers and collect CIR statistics",
			Description: `
Trace a sequence of frames of a synthetic room lit by a single LED. Every
pixel maps to a receiver position on the floor and emits light paths that
are reduced into per-pixel counters, binned into a delay histogram and
optionally collected as raw path records.

The records of the last frame can be exported to a timestamped CSV, JSONL or
TXT file and published to a redis list.`,
			Flags:  cmd.SimulateFlags,
			Action: cmd.Simulate,
		},
	}

	app.Run(os.Args)
}
