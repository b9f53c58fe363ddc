// Command echsq queries and edits the task queue of a running echsd.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "echsq: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "echsq"
	app.Usage = "inspect and edit the echse task queue"
	app.Version = version
	app.Flags = globalFlags
	app.Commands = []cli.Command{
		{
			Name:    "list",
			Aliases: []string{"ls"},
			Usage:   "print the queued tasks as a calendar",
			Flags:   userFlags,
			Action:  list,
		},
		{
			Name:      "next",
			Usage:     "print the upcoming occurrence of each task",
			ArgsUsage: "[tuid...]",
			Flags:     userFlags,
			Action:    next,
		},
		{
			Name:      "add",
			Usage:     "submit calendar files (stdin when none are given)",
			ArgsUsage: "[file.ics...]",
			Action:    add,
		},
		{
			Name:      "cancel",
			Usage:     "remove tasks from the queue",
			ArgsUsage: "tuid...",
			Action:    cancel,
		},
		{
			Name:      "history",
			Usage:     "print recent runs from the history store",
			ArgsUsage: "[tuid]",
			Flags:     historyFlags,
			Action:    history,
		},
	}
	app.Action = list
	return app
}
