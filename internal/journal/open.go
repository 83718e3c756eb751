// Package journal persists one audit record per handled request. It is an
// operator aid; journal errors are logged and never surfaced to HTTP
// callers.
package journal

import (
	"context"
	"errors"
	"strings"
	"time"

	"tgnotify/pkg/logx"
)

// Store is the persistence API used by the gateway.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Prune removes entries recorded before cutoff and reports how many
	// were removed (-1 when the driver cannot count cheaply).
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if the journal is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown journal driver: " + driver)
	}
}
