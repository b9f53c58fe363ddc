package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli"

	"echse/internal/client"
	"echse/internal/control"
	"echse/internal/ical"
)

var (
	socket string
	user   string

	globalFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "socket, s",
			Usage:       "daemon socket (default: own daemon, then the system one)",
			EnvVar:      "ECHSQ_SOCKET",
			Destination: &socket,
		},
	}
	userFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "user, u",
			Usage:       "uid whose queue to show (root only for other users)",
			Destination: &user,
		},
	}
)

func newClient() *client.Client {
	if socket != "" {
		return client.New(socket)
	}
	return client.New()
}

func userID() (int, error) {
	if user == "" {
		return -1, nil
	}
	uid, err := strconv.Atoi(user)
	if err != nil || uid < 0 {
		return 0, cli.NewExitError("--user wants a numeric uid", 2)
	}
	return uid, nil
}

func query(route control.Route, ids []string) error {
	uid, err := userID()
	if err != nil {
		return err
	}
	body, err := newClient().Query(context.Background(), control.Query{Route: route, UID: uid, IDs: ids})
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(body)
	return err
}

func list(_ *cli.Context) error { return query(control.RouteQueue, nil) }

func next(ctx *cli.Context) error { return query(control.RouteSched, ctx.Args()) }

func add(ctx *cli.Context) error {
	var in io.Reader = os.Stdin
	if files := ctx.Args(); len(files) > 0 {
		rs := make([]io.Reader, 0, len(files))
		for _, name := range files {
			f, err := os.Open(name)
			if err != nil {
				return err
			}
			defer f.Close()
			rs = append(rs, f)
		}
		in = io.MultiReader(rs...)
	}
	replies, err := newClient().Send(context.Background(), in)
	if err != nil {
		return err
	}
	return report(os.Stdout, replies)
}

func cancel(ctx *cli.Context) error {
	ids := ctx.Args()
	if len(ids) == 0 {
		return cli.NewExitError("cancel needs at least one tuid", 2)
	}
	replies, err := newClient().Cancel(context.Background(), ids...)
	if err != nil {
		return err
	}
	return report(os.Stdout, replies)
}

// report prints one SUCCESS or FAILURE line per reply and fails when any
// directive was refused.
func report(w io.Writer, replies []ical.Instruction) error {
	failed := 0
	for _, r := range replies {
		word := "SUCCESS"
		if !r.OK() {
			word = "FAILURE"
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\n", word, r.ID)
	}
	if failed > 0 {
		return cli.NewExitError(fmt.Sprintf("%d of %d directives refused", failed, len(replies)), 1)
	}
	return nil
}
