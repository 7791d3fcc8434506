package cmd

import (
	"os"

	"github.com/achilleasa/polaris-cir/log"
	"github.com/urfave/cli"
)

var logger = log.New("polaris-cir")

// Apply the global logging flags. Log output is appended to the file
// passed with --log-file; --quiet silences all output.
func setupLogging(ctx *cli.Context) {
	switch {
	case ctx.GlobalBool("quiet"):
		log.Discard()
	case ctx.GlobalString("log-file") != "":
		f, err := os.OpenFile(ctx.GlobalString("log-file"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warningf("could not open log file: %v", err)
			break
		}
		log.SetSink(f)
	}

	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
