// Package client talks to echsd over its control socket.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"echse/internal/control"
	"echse/internal/ical"
)

var (
	ErrNoDaemon = errors.New("client: no daemon listening")
	ErrStatus   = errors.New("client: request refused")
	ErrNoReply  = errors.New("client: daemon closed without reply")
)

const DefaultTimeout = 30 * time.Second

type Client struct {
	// Paths are tried in order; the first socket that accepts wins.
	Paths   []string
	Timeout time.Duration
}

// New returns a client for the given socket paths, or for the
// conventional ones of the calling user (then root's) when none are given.
func New(paths ...string) *Client {
	if len(paths) == 0 {
		uid := os.Getuid()
		paths = append(paths, control.SocketPath(uid))
		if uid != 0 {
			paths = append(paths, control.SocketPath(0))
		}
	}
	return &Client{Paths: paths, Timeout: DefaultTimeout}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	var errs []error
	for _, p := range c.Paths {
		conn, err := control.Dial(ctx, p)
		if err == nil {
			if c.Timeout > 0 {
				_ = conn.SetDeadline(time.Now().Add(c.Timeout))
			}
			return conn, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoDaemon, errors.Join(errs...))
}

// Query sends q and returns the reply body.
func (c *Client) Query(ctx context.Context, q control.Query) ([]byte, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if _, err := io.WriteString(conn, q.String()+"\r\n\r\n"); err != nil {
		return nil, err
	}
	return readResponse(bufio.NewReader(conn))
}

func readResponse(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return nil, ErrNoReply
	}
	f := strings.Fields(line)
	if len(f) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrNoReply, line)
	}
	code, err := strconv.Atoi(f[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNoReply, line)
	}
	for {
		l, err := br.ReadString('\n')
		if strings.TrimRight(l, "\r\n") == "" || err != nil {
			break
		}
	}
	if code != 200 {
		return nil, fmt.Errorf("%w: %s", ErrStatus, strings.TrimSpace(line))
	}
	return io.ReadAll(br)
}

// Send streams calendar documents to the daemon and returns one reply
// per directive, in order.
func (c *Client) Send(ctx context.Context, doc io.Reader) ([]ical.Instruction, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if _, err := io.Copy(conn, doc); err != nil {
		return nil, err
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return nil, err
		}
	}
	return readReplies(conn)
}

func readReplies(r io.Reader) ([]ical.Instruction, error) {
	d := ical.NewDecoder(r)
	var out []ical.Instruction
	for {
		in, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		if in.Verb == ical.VerbReply {
			out = append(out, in)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoReply
	}
	return out, nil
}

// Cancel asks the daemon to drop the given tasks.
func (c *Client) Cancel(ctx context.Context, ids ...string) ([]ical.Instruction, error) {
	var b strings.Builder
	w := ical.NewWriter(&b)
	w.Begin("CANCEL")
	for _, id := range ids {
		w.Cancel(id)
	}
	w.End()
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return c.Send(ctx, strings.NewReader(b.String()))
}
