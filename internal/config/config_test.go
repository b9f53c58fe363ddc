package config

import (
	"context"
	"reflect"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/spf13/afero"
)

const yamlCfg = `
logging:
  level: debug
  console: true
daemon:
  queue_dir: /var/spool/echse
  timezone: Europe/Berlin
  dry_run: true
checkpoint:
  schedule: "*/2 * * * *"
control:
  max_conns: 8
  read_timeout: 5s
storage:
  driver: sqlite
  path: /tmp/h.db
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("echsd.yaml", []byte(yamlCfg))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if cfg.Daemon.QueueDir != "/var/spool/echse" || !cfg.Daemon.DryRun || cfg.Control.MaxConns != 8 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("Storage = %+v", cfg.Storage)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	loc, _ := cfg.Location()
	if loc.String() != "Europe/Berlin" {
		t.Fatalf("Location = %v", loc)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, data string
	}{
		{"c.json", `{"daemon":{"bogus":1}}`},
		{"c.json", `{"daemon":{}} {}`},
		{"c.yaml", "daemon: [unclosed"},
	}
	for _, tt := range tests {
		if _, err := Decode(tt.name, []byte(tt.data)); err == nil {
			t.Fatalf("Decode(%s, %q) accepted", tt.name, tt.data)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"empty", Config{}, true},
		{"bad tz", Config{Daemon: DaemonConfig{Timezone: "Mars/Olympus"}}, false},
		{"bad schedule", Config{Checkpoint: CheckpointConfig{Schedule: "sometimes"}}, false},
		{"bad duration", Config{Control: ControlConfig{ReadTimeout: "soon"}}, false},
		{"bad driver", Config{Storage: &StorageConfig{Driver: "mongo"}}, false},
		{"negative slots", Config{Checkpoint: CheckpointConfig{DirtySlots: -1}}, false},
		{"debug addr", Config{Debug: DebugConfig{Enabled: true, Addr: "127.0.0.1:6060"}}, true},
		{"bad debug addr", Config{Debug: DebugConfig{Enabled: true, Addr: "6060"}}, false},
		{"public debug without token", Config{Debug: DebugConfig{Enabled: true, Addr: "0.0.0.0:6060"}}, false},
		{"public debug with token", Config{Debug: DebugConfig{Enabled: true, Addr: "0.0.0.0:6060", Token: "t"}}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); (err == nil) != tt.ok {
				t.Fatalf("Validate = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestDurationOr(t *testing.T) {
	t.Parallel()
	if d := DurationOr("", time.Second); d != time.Second {
		t.Fatalf("DurationOr(empty) = %v", d)
	}
	if d := DurationOr("3m", time.Second); d != 3*time.Minute {
		t.Fatalf("DurationOr(3m) = %v", d)
	}
	if d := DurationOr("-1s", time.Second); d != time.Second {
		t.Fatalf("DurationOr(-1s) = %v", d)
	}
}

func TestManagerLoadAndReload(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/etc/echsd.json", []byte(`{"logging":{"level":"info"}}`), 0o644)
	m := NewConfigManager("/etc/echsd.json")
	m.SetFs(fs)
	cfg, err := m.Load()
	if err != nil || cfg.Logging.Level != "info" {
		t.Fatalf("Load = %+v, %v", cfg, err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	m.reload(context.Background())
	select {
	case <-ch:
		t.Fatal("unchanged file published")
	default:
	}

	_ = afero.WriteFile(fs, "/etc/echsd.json", []byte(`{"daemon":{"timezone":"Nowhere/Land"}}`), 0o644)
	m.reload(context.Background())
	if m.Get().Logging.Level != "info" {
		t.Fatal("invalid config committed")
	}

	_ = afero.WriteFile(fs, "/etc/echsd.json", []byte(`{"logging":{"level":"debug"},"daemon":{"dry_run":true}}`), 0o644)
	m.reload(context.Background())
	select {
	case got := <-ch:
		if got.Logging.Level != "debug" || !got.Daemon.DryRun {
			t.Fatalf("published %+v", got)
		}
	default:
		t.Fatal("changed config not published")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	old := &Config{Daemon: DaemonConfig{QueueDir: "/q"}}
	cur := &Config{
		Logging: LoggingConfig{Level: "debug"},
		Daemon:  DaemonConfig{QueueDir: "/q", DryRun: true},
		Storage: &StorageConfig{Driver: "file", Path: "/s"},
	}
	changed, attrs, restart := SummarizeConfigChange(old, cur)
	if !reflect.DeepEqual(changed, []string{"daemon", "logging", "storage"}) {
		t.Fatalf("changed = %v", changed)
	}
	if !reflect.DeepEqual(restart, []string{"storage"}) {
		t.Fatalf("restart = %v", restart)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	cur.Daemon.Socket = "/tmp/s"
	if _, _, restart := SummarizeConfigChange(old, cur); !reflect.DeepEqual(restart, []string{"daemon", "storage"}) {
		t.Fatalf("restart after socket change = %v", restart)
	}
}
