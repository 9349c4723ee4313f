package banner

import (
	"context"
	"time"

	"heraldbot/internal/storage"
	"heraldbot/internal/transport"
	"heraldbot/pkg/logx"
)

// Scheduler polls the registry and re-delivers due banners.
//
// Failure policy: a job is advanced to now+interval on success AND on any
// transient delivery failure, so a single broken destination cannot wedge
// itself into a permanently-due state that re-attempts every tick. The
// only terminal outcome is a confirmed-gone source message, which removes
// the job.
type Scheduler struct {
	reg    *Registry
	client transport.Client
	audit  storage.Store // may be nil
	log    logx.Logger

	tick time.Duration
	now  func() time.Time
}

func NewScheduler(reg *Registry, client transport.Client, audit storage.Store, tick time.Duration, log logx.Logger) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		reg:    reg,
		client: client,
		audit:  audit,
		log:    log,
		tick:   tick,
		now:    time.Now,
	}
}

// Run executes the polling loop until ctx is canceled. Per-job failures
// never terminate the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("banner scheduler started", logx.Duration("tick", s.tick))
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("banner scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates all due jobs against one consistent clock reading, so
// two jobs sharing a next-run time are both handled in the same pass.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	for _, job := range s.reg.Due(now) {
		if ctx.Err() != nil {
			return
		}
		s.deliver(ctx, now, job)
	}
}

func (s *Scheduler) deliver(ctx context.Context, now time.Time, job Job) {
	started := time.Now()
	dest := transport.ChatTarget{ChatID: job.DestChat, ThreadID: job.DestThread}
	source := transport.MessageRef{ChatID: job.SourceChat, MessageID: job.SourceMessageID}

	err := s.client.Forward(ctx, dest, source)

	if transport.IsSourceGone(err) {
		// Self-healing, not an error path: the template message is gone,
		// so the job has nothing left to deliver.
		s.reg.Remove(job.Key())
		s.log.Warn("banner source gone; job removed",
			logx.String("key", string(job.Key())),
			logx.String("label", job.DisplayLabel))
		s.record(ctx, now, job, "banner_removed", false, err, started)
		return
	}

	next := now.Add(job.Interval())
	if !s.reg.Advance(job.Key(), next) {
		// Deleted by an operator while we were mid-delivery; do not
		// resurrect it.
		s.log.Debug("banner job removed mid-delivery", logx.String("key", string(job.Key())))
		return
	}

	if err != nil {
		s.log.Warn("banner delivery failed; rescheduled anyway",
			logx.String("key", string(job.Key())),
			logx.String("label", job.DisplayLabel),
			logx.Time("next_run", next),
			logx.Err(err))
	} else {
		s.log.Info("banner sent",
			logx.String("label", job.DisplayLabel),
			logx.Time("next_run", next))
	}
	s.record(ctx, now, job, "banner_send", err == nil, err, started)
}

func (s *Scheduler) record(ctx context.Context, now time.Time, job Job, kind string, ok bool, err error, started time.Time) {
	if s.audit == nil {
		return
	}
	e := storage.Entry{
		At:        now,
		Kind:      kind,
		ChatID:    job.DestChat,
		ThreadID:  job.DestThread,
		MessageID: job.SourceMessageID,
		Label:     job.DisplayLabel,
		OK:        ok,
		TookMS:    time.Since(started).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := s.audit.Append(ctx, e); aerr != nil {
		s.log.Debug("audit append failed", logx.Err(aerr))
	}
}
