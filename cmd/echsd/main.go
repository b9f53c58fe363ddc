// Command echsd is the echse scheduling daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"echse/internal/app"
)

var (
	version = "dev"
	opts    app.Options
)

var flags = []cli.Flag{
	cli.StringFlag{
		Name:        "config, c",
		Usage:       "config file (.json or .yaml), optional",
		EnvVar:      "ECHSD_CONFIG",
		Destination: &opts.ConfigPath,
	},
	cli.StringFlag{
		Name:        "socket, s",
		Usage:       "control socket path",
		Destination: &opts.Socket,
	},
	cli.StringFlag{
		Name:        "queue-dir, q",
		Usage:       "directory holding the echsq_<uid>.ics queue files",
		Destination: &opts.QueueDir,
	},
	cli.StringFlag{
		Name:        "helper",
		Usage:       "path of the echsx helper",
		Destination: &opts.Helper,
	},
	cli.StringFlag{
		Name:        "timezone, z",
		Usage:       "timezone for floating calendar times (default UTC)",
		Destination: &opts.Timezone,
	},
	cli.StringFlag{
		Name:        "log-level",
		Usage:       "trace, debug, info, warn or error",
		Destination: &opts.LogLevel,
	},
	cli.BoolFlag{
		Name:        "dry-run, n",
		Usage:       "log helper invocations instead of running them",
		Destination: &opts.DryRun,
	},
}

func main() {
	a := cli.NewApp()
	a.Name = "echsd"
	a.Usage = "run tasks on a calendar schedule"
	a.Version = version
	a.Flags = flags
	a.Action = run
	if err := a.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "echsd: %s\n", err)
		os.Exit(1)
	}
}

func run(_ *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := app.New(opts)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	reason := app.StopUnknown
	select {
	case s := <-sig:
		reason = app.StopSIGTERM
		if s == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-d.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = d.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return d.Err()
	}
	return nil
}
