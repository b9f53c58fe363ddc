package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// stderr is where echsd's console sink goes; under systemd the journal
// picks it up.
var stderr io.Writer = os.Stderr

const DefaultFile = "/var/log/echse/echsd.log"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

// FileConfig is the JSON file sink. Zero limits mean 10 MB, 5 backups and
// 30 days.
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Service owns the sinks and swaps them on Apply.
type Service struct {
	mu   sync.Mutex
	file *lumberjack.Logger
	cur  atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the service with a live root logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	s.Apply(cfg)
	return s, Logger{src: s.current}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.cur.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply rebuilds the sinks. Loggers handed out earlier switch over with
// the next event.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(stderr))
	}
	old := s.file
	s.file = nil
	if cfg.File.Enabled {
		if f, err := openFile(cfg.File); err != nil {
			fmt.Fprintf(stderr, "logx: %v\n", err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(stderr))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger()
	s.cur.Store(&zl)

	if old != nil {
		_ = old.Close()
	}
}

// Close releases the file sink. Console output keeps working.
func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func openFile(c FileConfig) (*lumberjack.Logger, error) {
	path := strings.TrimSpace(c.Path)
	if path == "" {
		path = DefaultFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log dir for %q: %w", path, err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    orDefault(c.MaxSizeMB, 10),
		MaxBackups: orDefault(c.MaxBackups, 5),
		MaxAge:     orDefault(c.MaxAgeDays, 30),
		Compress:   c.Compress,
	}, nil
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
