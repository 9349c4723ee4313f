// Package storage provides the optional audit trail: one record per banner
// delivery attempt and per media capture. The registry's own snapshot is
// not kept here; losing the audit store never affects scheduling.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"heraldbot/pkg/logx"
)

// Config selects the audit backend.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one delivery attempt or capture outcome.
// Keep it compact and schema-stable.
type Entry struct {
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"` // "banner_send", "banner_removed", "capture"
	ChatID    int64     `json:"chat_id"`
	ThreadID  int       `json:"thread_id,omitempty"`
	MessageID int       `json:"message_id,omitempty"`
	Label     string    `json:"label,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms,omitempty"`
}

// Store is the minimal audit API used by the scheduler and the capture
// pipeline.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Prune drops entries older than before, returning how many were removed.
	Prune(ctx context.Context, before time.Time) (int, error)
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
	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
