package storage

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"heraldbot/pkg/logx"
)

// Maintenance prunes expired audit entries on a daily cron schedule.
type Maintenance struct {
	store     Store
	log       logx.Logger
	retention time.Duration
	c         *cron.Cron
}

// NewMaintenance returns nil when there is nothing to maintain (no store
// or no retention window configured).
func NewMaintenance(store Store, retention time.Duration, log logx.Logger) *Maintenance {
	if store == nil || retention <= 0 {
		return nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Maintenance{store: store, log: log, retention: retention}
}

func (m *Maintenance) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.c = cron.New()
	_, err := m.c.AddFunc("@daily", func() { m.prune(ctx) })
	if err != nil {
		return err
	}
	m.c.Start()
	// Catch up immediately; a bot restarted after a long downtime should
	// not wait a day for its first prune.
	go m.prune(ctx)
	return nil
}

func (m *Maintenance) Stop() {
	if m == nil || m.c == nil {
		return
	}
	<-m.c.Stop().Done()
}

func (m *Maintenance) prune(ctx context.Context) {
	before := time.Now().Add(-m.retention)
	n, err := m.store.Prune(ctx, before)
	if err != nil {
		m.log.Warn("audit prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		m.log.Info("audit entries pruned", logx.Int("count", n), logx.Time("before", before))
	}
}
