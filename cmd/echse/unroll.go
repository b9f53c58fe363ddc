package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli"

	"echse/internal/ical"
	"echse/internal/instant"
	"echse/internal/stream"
)

var (
	unrollFrom string
	unrollTill string
	unrollMax  int

	unrollFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "from",
			Usage:       "first instant to print (default: today)",
			Destination: &unrollFrom,
		},
		cli.StringFlag{
			Name:        "till",
			Usage:       "stop before this instant (default: one year after --from)",
			Destination: &unrollTill,
		},
		cli.IntFlag{
			Name:        "max, n",
			Usage:       "print at most this many occurrences, 0 means no limit",
			Destination: &unrollMax,
		},
	}
)

func unrollAction(ctx *cli.Context) error {
	win, err := window(unrollFrom, unrollTill, time.Now())
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	files := ctx.Args()
	if len(files) == 0 {
		return unroll(os.Stdin, os.Stdout, win, unrollMax)
	}
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		err = unroll(f, os.Stdout, win, unrollMax)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func window(from, till string, now time.Time) (instant.Range, error) {
	var r instant.Range
	if from == "" {
		r.From = midnight(instant.FromTime(now).DateOnly())
	} else {
		i, err := instant.Parse(from)
		if err != nil {
			return r, fmt.Errorf("--from: %w", err)
		}
		r.From = midnight(i)
	}
	if till == "" {
		r.Till = midnight(instant.FixupDate(int(r.From.Year)+1, int(r.From.Month), int(r.From.Day)))
	} else {
		i, err := instant.Parse(till)
		if err != nil {
			return r, fmt.Errorf("--till: %w", err)
		}
		r.Till = midnight(i)
	}
	if !r.From.Less(r.Till) {
		return r, fmt.Errorf("empty window %s", r)
	}
	return r, nil
}

// midnight turns a bare date into the first instant of that day; an
// all-day instant would sort after the day's timed occurrences.
func midnight(i instant.Instant) instant.Instant {
	if i.IsAllDay() {
		return i.WithTime(0, 0, 0)
	}
	return i
}

// unroll merges the occurrences of every event in r and prints one line
// per occurrence: start, end and uid separated by tabs.
func unroll(r io.Reader, w io.Writer, win instant.Range, max int) error {
	d := ical.NewDecoder(r)
	var parts []stream.Stream
	for {
		in, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if in.Verb != ical.VerbSchedule || in.Task == nil {
			continue
		}
		s := in.Task.Stream()
		if s == nil {
			continue
		}
		s.SetValid(win)
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return nil
	}
	for _, ev := range stream.Collect(stream.NewMux(parts...), max) {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%v\n", ev.From, ev.Till, ev.Payload); err != nil {
			return err
		}
	}
	return nil
}
