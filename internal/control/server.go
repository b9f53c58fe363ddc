// Package control serves the daemon's local socket: schedule and queue
// queries, and calendar documents carrying create, update and cancel
// directives.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"echse/internal/ical"
	"echse/internal/task/scheduler"
	logx "echse/pkg/logx"
	"echse/pkg/systemd"
)

const (
	DefaultMaxConns    = 64
	DefaultReadTimeout = 30 * time.Second
)

type Config struct {
	Path        string
	MaxConns    int
	AcceptRate  float64
	AcceptBurst int
	ReadTimeout time.Duration
}

// Backend executes requests. Implementations serialize them with the
// rest of the daemon's work.
type Backend interface {
	// Instruct applies one directive on behalf of p.
	Instruct(ctx context.Context, p scheduler.Peer, in ical.Instruction) error
	// Schedule lists uid's live tasks.
	Schedule(ctx context.Context, uid int, ids []string) ([]scheduler.Item, error)
	// Queue opens uid's persisted queue, checkpointing it first if stale.
	// A nil reader means there is nothing persisted.
	Queue(ctx context.Context, uid int) (io.ReadCloser, error)
}

type Server struct {
	cfg   Config
	be    Backend
	log   logx.Logger
	lim   *rate.Limiter
	slots chan struct{}
	peer  func(net.Conn) (scheduler.Peer, error)

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

func New(cfg Config, be Backend, log logx.Logger) *Server {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst <= 0 {
			burst = int(cfg.AcceptRate) + 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}
	return &Server{
		cfg:   cfg,
		be:    be,
		log:   log.With(logx.String("comp", "control")),
		lim:   lim,
		slots: make(chan struct{}, cfg.MaxConns),
		peer:  PeerCreds,
	}
}

// Listen returns the socket handed over by the service manager or binds
// path, replacing a stale socket file. The socket is world-writable;
// peers are told apart by their credentials.
func Listen(path string) (net.Listener, error) {
	if l, err := systemd.Listener(); err != nil || l != nil {
		return l, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	_ = os.Chmod(path, 0o666)
	return l, nil
}

// Serve accepts connections until ctx is cancelled or ln fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	s.log.Info("listening", logx.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.log.Warn("accept failed", logx.Err(err))
			continue
		}
		if err := s.admit(); err != nil {
			s.log.Warn("connection refused", logx.Err(err))
			_ = conn.Close()
			continue
		}
		peer, err := s.peer(conn)
		if err != nil {
			s.log.Warn("peer credentials", logx.Err(err))
			<-s.slots
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.slots }()
			defer conn.Close()
			s.Handle(ctx, idleConn{Conn: conn, idle: s.cfg.ReadTimeout}, conn, peer)
		}()
	}
}

// idleConn pushes the read deadline out before every read, so the
// timeout bounds silence rather than the whole conversation.
type idleConn struct {
	net.Conn
	idle time.Duration
}

func (c idleConn) Read(b []byte) (int, error) {
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.idle))
	return c.Conn.Read(b)
}

func (s *Server) admit() error {
	if !s.lim.Allow() {
		return ErrRateLimited
	}
	select {
	case s.slots <- struct{}{}:
		return nil
	default:
		return ErrTooManyConns
	}
}

// Close stops accepting. Connections in progress finish.
func (s *Server) Close() {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
}

// Handle serves one connection: a single query, or a stream of
// calendar documents.
func (s *Server) Handle(ctx context.Context, r io.Reader, w io.Writer, p scheduler.Peer) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && len(head) == 0 {
		return
	}
	log := s.log.With(logx.Int("peer", p.UID))
	if string(head) == "GET " {
		line, err := br.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		q, err := ParseQuery(line)
		if err != nil {
			log.Debug("bad query", logx.Err(err))
			return
		}
		s.query(ctx, w, p, q, log)
		return
	}
	s.instruct(ctx, br, w, p, log)
}

func (s *Server) query(ctx context.Context, w io.Writer, p scheduler.Peer, q Query, log logx.Logger) {
	uid := q.UID
	if uid < 0 {
		uid = p.UID
	}
	if uid != p.UID && !p.Privileged() {
		_, _ = io.WriteString(w, StatusForbid)
		return
	}
	switch q.Route {
	case RouteSched:
		items, err := s.be.Schedule(ctx, uid, q.IDs)
		if err != nil {
			log.Warn("schedule query failed", logx.Err(err))
			_, _ = io.WriteString(w, StatusError)
			return
		}
		bw := bufio.NewWriter(w)
		bw.WriteString(StatusOK)
		for _, it := range items {
			fmt.Fprintf(bw, "%s\t%s\n", it.TaskID, it.Event.Range())
		}
		_ = bw.Flush()
	case RouteQueue:
		rc, err := s.be.Queue(ctx, uid)
		if err != nil {
			log.Warn("queue query failed", logx.Err(err))
			_, _ = io.WriteString(w, StatusError)
			return
		}
		_, _ = io.WriteString(w, StatusOK)
		if rc != nil {
			defer rc.Close()
			_, _ = io.Copy(w, rc)
		}
	default:
		_, _ = io.WriteString(w, StatusNotFound)
	}
}

// instruct applies directives as they arrive. Each reply is written as
// soon as its directive is done and the reply calendar is closed when
// the input calendar is. A malformed item ends the conversation; items
// before it keep their replies.
func (s *Server) instruct(ctx context.Context, r io.Reader, w io.Writer, p scheduler.Peer, log logx.Logger) {
	d := ical.NewDecoder(r)
	d.ReportEnd = true
	rw := ical.NewWriter(w)
	open := false
	closeReply := func() {
		if open {
			rw.End()
			_ = rw.Flush()
			open = false
		}
	}
	defer closeReply()

	for {
		in, err := d.Next()
		switch {
		case errors.Is(err, ical.ErrEndOfCalendar):
			closeReply()
			continue
		case err == io.EOF:
			return
		case errors.Is(err, os.ErrDeadlineExceeded):
			log.Debug("instruction stream idle", logx.Int("line", d.Line()))
			return
		case err != nil:
			log.Info("malformed instruction", logx.Err(err), logx.Int("line", d.Line()))
			return
		}
		if in.Verb == ical.VerbReply {
			continue
		}
		if !open {
			rw.BeginReply()
			open = true
		}
		err = s.be.Instruct(ctx, p, in)
		if err != nil {
			log.Info("directive rejected", logx.String("tuid", in.ID), logx.String("verb", in.Verb.String()), logx.Err(err))
		}
		rw.Reply(in.ID, err == nil)
		if err := rw.Flush(); err != nil {
			log.Debug("reply not delivered", logx.Err(err))
			return
		}
	}
}

// Dial connects to the daemon socket at path.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return c, nil
}

// SocketPath is the conventional socket location for uid.
func SocketPath(uid int) string {
	if uid == 0 {
		return "/var/run/echse/=echsd"
	}
	run := fmt.Sprintf("/var/run/user/%d", uid)
	if fi, err := os.Stat(run); err == nil && fi.IsDir() {
		return filepath.Join(run, "echse", "=echsd")
	}
	return filepath.Join(os.TempDir(), "echse", "=echsd")
}
