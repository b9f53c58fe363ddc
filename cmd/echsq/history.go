package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"echse/internal/storage"
	logx "echse/pkg/logx"
)

var (
	historyDriver string
	historyPath   string
	historyLimit  int

	historyFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "driver",
			Value:       "sqlite",
			Usage:       "history store driver: file or sqlite",
			Destination: &historyDriver,
		},
		cli.StringFlag{
			Name:        "store",
			Usage:       "history store path as configured for echsd",
			EnvVar:      "ECHSQ_STORE",
			Destination: &historyPath,
		},
		cli.IntFlag{
			Name:        "limit, n",
			Value:       20,
			Usage:       "number of records to print",
			Destination: &historyLimit,
		},
	}
)

func history(ctx *cli.Context) error {
	if historyPath == "" {
		return cli.NewExitError("--store is required", 2)
	}
	st, err := storage.Open(storage.Config{Driver: historyDriver, Path: historyPath}, logx.Nop())
	if err != nil {
		return err
	}
	if st == nil {
		return cli.NewExitError("history store disabled", 2)
	}
	defer st.Close()
	runs, err := st.RecentRuns(context.Background(), ctx.Args().First(), historyLimit)
	if err != nil {
		return err
	}
	printRuns(os.Stdout, runs, time.Now())
	return nil
}

func printRuns(w io.Writer, runs []storage.RunRecord, now time.Time) {
	for _, r := range runs {
		status := "started"
		if r.Kind == storage.RunExited {
			status = fmt.Sprintf("exit %d after %s", r.Code, time.Duration(r.TookMS)*time.Millisecond)
		}
		if r.NoRun {
			status = "notified"
		}
		if r.Error != "" {
			status += ": " + r.Error
		}
		fmt.Fprintf(w, "%s\t%s\tpid %d\t%s\n", humanize.RelTime(r.At, now, "ago", "from now"), r.TaskID, r.PID, status)
	}
}
