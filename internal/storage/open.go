package storage

import (
	"context"
	"errors"
	"strings"

	logx "echse/pkg/logx"
)

// Store is the persistence API used by the recorder and echsq.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	// RecentRuns returns up to limit records for taskID, newest first.
	// An empty taskID matches every task.
	RecentRuns(ctx context.Context, taskID string, limit int) ([]RunRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
