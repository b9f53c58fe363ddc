// Package checkpoint persists each user's live tasks to a queue file and
// reads them back at startup.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"

	"echse/internal/ical"
	"echse/internal/task/scheduler"
	logx "echse/pkg/logx"
)

const (
	DefaultSchedule = "@every 60s"

	filePrefix = "echsq_"
	fileSuffix = ".ics"
)

var ErrNoQueue = errors.New("checkpoint: no queue file")

type Config struct {
	Dir      string
	Schedule string
	Slots    int
}

// Source is the live task set.
type Source interface {
	Each(func(*scheduler.Entry) bool)
	TasksOf(uid int) []*scheduler.Entry
}

// Checkpointer owns the dirty set and the queue directory. Like the core
// it is driven from the daemon loop only.
type Checkpointer struct {
	fs    afero.Fs
	dir   string
	dirty *Dirty
	sched cron.Schedule
	log   logx.Logger
}

func New(fs afero.Fs, cfg Config, log logx.Logger) (*Checkpointer, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	spec := strings.TrimSpace(cfg.Schedule)
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("checkpoint schedule %q: %w", spec, err)
	}
	if cfg.Dir == "" {
		return nil, errors.New("checkpoint: queue dir required")
	}
	if err := fs.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return &Checkpointer{
		fs:    fs,
		dir:   cfg.Dir,
		dirty: NewDirty(cfg.Slots),
		sched: sched,
		log:   log.With(logx.String("comp", "checkpoint")),
	}, nil
}

// Mark records that uid's tasks changed.
func (c *Checkpointer) Mark(uid int) { c.dirty.Mark(uid) }

func (c *Checkpointer) IsDirty(uid int) bool { return c.dirty.Has(uid) }

// Next is the first scheduled checkpoint after now.
func (c *Checkpointer) Next(now time.Time) time.Time { return c.sched.Next(now) }

func (c *Checkpointer) Dir() string { return c.dir }

// Path of uid's queue file.
func (c *Checkpointer) Path(uid int) string {
	return filepath.Join(c.dir, filePrefix+strconv.Itoa(uid)+fileSuffix)
}

func (c *Checkpointer) tmpPath(uid int) string {
	return filepath.Join(c.dir, "."+filePrefix+strconv.Itoa(uid)+fileSuffix)
}

// Run writes the queue file of every dirty user. After an overflow of
// the dirty set every owner is written, including owners of queue files
// whose tasks are all gone. Users that fail stay dirty.
func (c *Checkpointer) Run(src Source) error {
	uids, overflow := c.dirty.Take()
	if overflow {
		uids = c.everyone(src)
	}
	var result *multierror.Error
	for _, uid := range uids {
		if err := c.write(uid, src.TasksOf(uid)); err != nil {
			c.dirty.Mark(uid)
			result = multierror.Append(result, fmt.Errorf("uid %d: %w", uid, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		c.log.Warn("checkpoint incomplete", logx.Err(err), logx.Int("failed", result.Len()))
		return err
	}
	if len(uids) > 0 {
		c.log.Debug("checkpoint done", logx.Int("users", len(uids)), logx.Bool("sweep", overflow))
	}
	return nil
}

// User checkpoints uid now if it is dirty.
func (c *Checkpointer) User(src Source, uid int) error {
	if !c.dirty.Has(uid) {
		return nil
	}
	if c.dirty.Overflow() {
		return c.Run(src)
	}
	if err := c.write(uid, src.TasksOf(uid)); err != nil {
		return fmt.Errorf("uid %d: %w", uid, err)
	}
	c.dirty.remove(uid)
	return nil
}

func (c *Checkpointer) everyone(src Source) []int {
	seen := map[int]bool{}
	src.Each(func(e *scheduler.Entry) bool {
		seen[e.Task.Owner] = true
		return true
	})
	if files, err := c.files(); err == nil {
		for uid := range files {
			seen[uid] = true
		}
	}
	uids := make([]int, 0, len(seen))
	for uid := range seen {
		uids = append(uids, uid)
	}
	sort.Ints(uids)
	return uids
}

func (c *Checkpointer) write(uid int, entries []*scheduler.Entry) (err error) {
	tmp := c.tmpPath(uid)
	f, err := c.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = c.fs.Remove(tmp)
		}
	}()
	w := ical.NewWriter(f)
	w.Begin("PUBLISH")
	for _, e := range entries {
		if s := e.Pending(); s != nil {
			w.Task(e.Task, s)
		}
	}
	w.End()
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return c.fs.Rename(tmp, c.Path(uid))
}

// Open returns uid's queue file for reading.
func (c *Checkpointer) Open(uid int) (io.ReadCloser, error) {
	f, err := c.fs.Open(c.Path(uid))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: uid %d", ErrNoQueue, uid)
	}
	return f, err
}

// files maps uids to their queue file names.
func (c *Checkpointer) files() (map[int]string, error) {
	names, err := afero.Glob(c.fs, filepath.Join(c.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	out := make(map[int]string, len(names))
	for _, n := range names {
		base := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(n), filePrefix), fileSuffix)
		uid, err := strconv.Atoi(base)
		if err != nil || uid < 0 {
			continue
		}
		out[uid] = n
	}
	return out, nil
}

// Load decodes every queue file and hands each scheduling instruction to
// fn together with the uid the file belongs to. A broken file does not
// stop the others from loading.
func (c *Checkpointer) Load(fn func(uid int, in ical.Instruction)) error {
	files, err := c.files()
	if err != nil {
		return err
	}
	uids := make([]int, 0, len(files))
	for uid := range files {
		uids = append(uids, uid)
	}
	sort.Ints(uids)

	var result *multierror.Error
	for _, uid := range uids {
		n, err := c.loadFile(files[uid], uid, fn)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", files[uid], err))
		}
		c.log.Info("queue loaded", logx.Int("uid", uid), logx.Int("tasks", n))
	}
	return result.ErrorOrNil()
}

func (c *Checkpointer) loadFile(name string, uid int, fn func(int, ical.Instruction)) (int, error) {
	f, err := c.fs.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	d := ical.NewDecoder(f)
	n := 0
	for {
		in, err := d.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if in.Verb != ical.VerbSchedule || in.Task == nil {
			continue
		}
		in.Task.Owner = uid
		fn(uid, in)
		n++
	}
}
