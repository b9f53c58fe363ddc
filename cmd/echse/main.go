// Command echse expands calendar files into their occurrences.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "echse: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "echse"
	app.Usage = "calendar tools for the echse scheduler"
	app.Version = version
	app.Commands = []cli.Command{
		{
			Name:      "unroll",
			Usage:     "print the occurrences of calendar files",
			ArgsUsage: "[file.ics...]",
			Flags:     unrollFlags,
			Action:    unrollAction,
		},
	}
	return app
}
