package config

import (
	"sort"
	"strings"

	logx "echse/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, log fields
// describing the new values, and the sections that only take effect
// after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	od, nd := oldCfg.Daemon, newCfg.Daemon
	if od != nd {
		changed = append(changed, "daemon")
		attrs = append(attrs,
			logx.Bool("daemon.dry_run", nd.DryRun),
			logx.String("daemon.timezone", strings.TrimSpace(nd.Timezone)),
		)
		// dry_run and history_size apply live; the rest is bound at startup
		od.DryRun, nd.DryRun = false, false
		od.HistorySize, nd.HistorySize = 0, 0
		if od != nd {
			restart = append(restart, "daemon")
		}
	}

	if oldCfg.Checkpoint != newCfg.Checkpoint {
		changed = append(changed, "checkpoint")
		restart = append(restart, "checkpoint")
		attrs = append(attrs,
			logx.String("checkpoint.schedule", newCfg.Checkpoint.Schedule),
			logx.Int("checkpoint.dirty_slots", newCfg.Checkpoint.DirtySlots),
		)
	}

	if oldCfg.Control != newCfg.Control {
		changed = append(changed, "control")
		restart = append(restart, "control")
		attrs = append(attrs,
			logx.Int("control.max_conns", newCfg.Control.MaxConns),
			logx.Float64("control.accept_rate", newCfg.Control.AcceptRate),
		)
	}

	var ost, nst StorageConfig
	if oldCfg.Storage != nil {
		ost = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nst = *newCfg.Storage
	}
	if ost != nst {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nst.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nst.Path) != ""),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		restart = append(restart, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
		)
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}
