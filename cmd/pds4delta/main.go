// Command pds4delta checks a delta PDS4 bundle delivery for readiness
// against the bundle it supersedes, and optionally merges the two into a
// new bundle tree.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"pds4delta/bundle"
	"pds4delta/supersede"
	"pds4delta/validate"
)

// mainOpts holds every flag's destination directly; urfave/cli populates
// it via cli.Flag.Destination before Action runs.
var mainOpts = struct {
	mergedDir string
	jaxa      bool
	dryRun    bool
	debug     bool
	logfile   string
}{}

var log = logrus.New()

func main() {
	app := cli.NewApp()
	app.Name = "pds4delta"
	app.Usage = "validate and merge successive PDS4 archive deliveries"
	app.UsageText = "pds4delta <previous_bundle_dir> <delta_bundle_dir> [options]"
	app.ArgsUsage = "<previous_bundle_dir> <delta_bundle_dir>"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "supersede, s",
			Usage:       "merge into `MERGED_BUNDLE_DIR` after a clean readiness check",
			Destination: &mainOpts.mergedDir,
		},
		cli.BoolFlag{
			Name:        "jaxa, j",
			Usage:       "relax V1f and reinject bundle member entries omitted for unchanged collections",
			Destination: &mainOpts.jaxa,
		},
		cli.BoolFlag{
			Name:        "dry, D",
			Usage:       "plan and log supersede actions without writing files",
			Destination: &mainOpts.dryRun,
		},
		cli.BoolFlag{
			Name:        "debug, d",
			Usage:       "enable debug-level logging",
			Destination: &mainOpts.debug,
		},
		cli.StringFlag{
			Name:        "logfile, l",
			Usage:       "write log output to `PATH` instead of stderr",
			Destination: &mainOpts.logfile,
		},
	}
	app.Action = run

	err := app.Run(os.Args)
	if err == nil {
		return
	}
	// HandleExitCoder exits with the code attached via cli.NewExitError;
	// a plain error reaching here is an unexpected setup failure.
	cli.HandleExitCoder(err)
	log.Error(err)
	os.Exit(2)
}

func run(c *cli.Context) error {
	if err := configureLogging(); err != nil {
		return err
	}

	if c.NArg() != 2 {
		return cli.NewExitError("expected exactly two arguments: previous_bundle_dir delta_bundle_dir", 2)
	}
	previousDir := c.Args().Get(0)
	deltaDir := c.Args().Get(1)

	previous, err := bundle.Load(previousDir)
	if err != nil {
		return cli.NewExitError("loading previous bundle: "+err.Error(), 2)
	}
	delta, err := bundle.Load(deltaDir)
	if err != nil {
		return cli.NewExitError("loading delta bundle: "+err.Error(), 2)
	}

	results := validate.CheckReady(previous, delta, mainOpts.jaxa)
	fatal := reportResults(results)
	if fatal {
		return cli.NewExitError("readiness check failed", 1)
	}
	log.Info("readiness check passed")

	if mainOpts.mergedDir == "" {
		return nil
	}

	eng := &supersede.Engine{
		Previous:   previous,
		Delta:      delta,
		MergedPath: mainOpts.mergedDir,
		Opts: supersede.Options{
			Jaxa:   mainOpts.jaxa,
			DryRun: mainOpts.dryRun,
		},
		Log: log.Debugf,
	}
	if err := eng.Run(); err != nil {
		return cli.NewExitError("supersede failed: "+err.Error(), 2)
	}
	log.Info("supersede complete")

	return nil
}

func reportResults(results []validate.ValidationError) bool {
	fatal := false
	for _, r := range results {
		entry := log.WithField("type", r.Type)
		if r.Severity == validate.SeverityError {
			fatal = true
			entry.Error(r.Message)
		} else {
			entry.Warn(r.Message)
		}
	}
	return fatal
}

func configureLogging() error {
	log.SetLevel(logrus.InfoLevel)
	if mainOpts.debug {
		log.SetLevel(logrus.DebugLevel)
	}

	if mainOpts.logfile == "" {
		return nil
	}

	f, err := os.OpenFile(mainOpts.logfile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return cli.NewExitError("opening logfile: "+err.Error(), 2)
	}
	log.SetOutput(f)
	return nil
}
