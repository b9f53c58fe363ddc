package engine

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"al.essio.dev/pkg/shellescape"

	"echse/internal/eventbus"
	logx "echse/pkg/logx"
)

// Service starts helper processes and reports their exits. It does not
// decide when to run anything; the scheduler core does.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	exits  chan Exit
	stopCh chan struct{}
	closed bool

	start func(*exec.Cmd) error
	now   func() time.Time

	hmu     sync.Mutex
	history []HistoryItem

	running atomic.Int64
	spawned atomic.Uint64
	failed  atomic.Uint64
	fakePID atomic.Int64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	if bus == nil {
		bus = eventbus.New()
	}
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "engine")),
		bus:    bus,
		exits:  make(chan Exit, 64),
		stopCh: make(chan struct{}),
		start:  (*exec.Cmd).Start,
		now:    time.Now,
	}
}

// Exits delivers one Exit per counted job.
func (s *Service) Exits() <-chan Exit { return s.exits }

// Spawn starts j in the background and returns the child's pid. Dry runs
// return a negative pseudo pid.
func (s *Service) Spawn(j Job) (int, error) {
	if len(j.Argv) == 0 {
		return 0, ErrNoArgv
	}
	s.mu.Lock()
	cfg := s.cfg
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, ErrStopped
	}
	helper := cfg.Helper
	if helper == "" {
		h, err := LocateHelper(HelperName)
		if err != nil {
			return 0, err
		}
		helper = h
	}
	now := s.now()
	log := s.log.With(logx.String("tuid", j.TaskID), logx.Bool("no_run", j.NoRun))

	if cfg.DryRun {
		pid := int(-s.fakePID.Add(1))
		log.Info("dry run", logx.String("cmd", shellescape.QuoteCommand(append([]string{helper}, j.Argv...))))
		s.spawned.Add(1)
		s.publish("task.spawned", TaskEvent{TaskID: j.TaskID, Owner: j.Owner, PID: pid, NoRun: j.NoRun, Started: now})
		if !j.NoRun {
			s.running.Add(1)
			go s.finish(j, pid, now, nil)
		}
		return pid, nil
	}

	cmd := exec.Command(helper, j.Argv...)
	cmd.Env = j.Env
	// detach from the daemon's process group so terminal signals stay with us
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := s.start(cmd); err != nil {
		s.failed.Add(1)
		log.Error("spawn failed", logx.Err(err))
		return 0, fmt.Errorf("spawn %s: %w", j.TaskID, err)
	}
	pid := cmd.Process.Pid
	s.spawned.Add(1)
	log.Debug("spawned", logx.Int("pid", pid))
	s.publish("task.spawned", TaskEvent{TaskID: j.TaskID, Owner: j.Owner, PID: pid, NoRun: j.NoRun, Started: now})
	if !j.NoRun {
		s.running.Add(1)
	}
	go func() {
		err := cmd.Wait()
		if j.NoRun {
			if err != nil {
				log.Warn("notify helper failed", logx.Err(err))
			}
			return
		}
		s.finish(j, pid, now, err)
	}()
	return pid, nil
}

func (s *Service) finish(j Job, pid int, started time.Time, err error) {
	s.running.Add(-1)
	code := 0
	if err != nil {
		code = -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
			if code >= 0 {
				err = nil
			}
		}
	}
	if code != 0 {
		s.failed.Add(1)
	}
	ex := Exit{Serial: j.Serial, TaskID: j.TaskID, PID: pid, Code: code, Err: err, Started: started, Duration: s.now().Sub(started)}
	ev := TaskEvent{TaskID: j.TaskID, Owner: j.Owner, PID: pid, Started: started, Duration: ex.Duration, Code: code}
	if err != nil {
		ev.Error = err.Error()
	}
	s.record(HistoryItem{TaskID: j.TaskID, PID: pid, Started: started, Duration: ex.Duration, Code: code, Error: ev.Error})
	s.publish("task.exited", ev)
	s.log.Debug("exited", logx.String("tuid", j.TaskID), logx.Int("pid", pid), logx.Int("code", code))

	select {
	case s.exits <- ex:
	case <-s.stopCh:
	}
}

func (s *Service) publish(typ string, ev TaskEvent) {
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: ev})
}

func (s *Service) record(it HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

// Apply swaps dry-run mode and history size. Children already running
// are unaffected.
func (s *Service) Apply(cfg Config) {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	s.mu.Lock()
	cfg.Helper = s.cfg.Helper
	s.cfg = cfg
	s.mu.Unlock()
}

// Close stops delivering exits. Children already running are left alone.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.stopCh)
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	s.hmu.Lock()
	h := make([]HistoryItem, len(s.history))
	copy(h, s.history)
	s.hmu.Unlock()
	return Snapshot{
		Helper:  cfg.Helper,
		DryRun:  cfg.DryRun,
		Running: int(s.running.Load()),
		Spawned: s.spawned.Load(),
		Failed:  s.failed.Load(),
		History: h,
	}
}
