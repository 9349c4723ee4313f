package capture

import (
	"context"
	"time"

	rtsup "heraldbot/internal/runtime/supervisor"
	"heraldbot/internal/storage"
	"heraldbot/internal/transport"
	"heraldbot/pkg/logx"
)

// DefaultBaseDelay spaces the re-download away from the platform-side
// expiry race and from rapid-fire abuse detection.
const DefaultBaseDelay = 2 * time.Second

type Config struct {
	ArchiveChat   int64
	ArchiveThread int
	BaseDelay     time.Duration
	Location      *time.Location
}

// Pipeline runs one independent capture task per self-destruct message.
// Tasks never block update dispatch and never propagate failures: any
// error at any step is logged and the attempt is discarded (no retry, no
// dead-letter queue).
type Pipeline struct {
	client transport.Client
	audit  storage.Store // may be nil
	log    logx.Logger
	cfg    Config

	sup *rtsup.Supervisor

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func New(client transport.Client, audit storage.Store, cfg Config, log logx.Logger) *Pipeline {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{
		client: client,
		audit:  audit,
		log:    log,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Start binds in-flight capture tasks to ctx.
func (p *Pipeline) Start(ctx context.Context) {
	p.sup = rtsup.New(ctx, rtsup.WithLogger(p.log))
}

// Stop abandons tasks still in flight after a short grace window; a
// capture has no state worth waiting for.
func (p *Pipeline) Stop(ctx context.Context) {
	if p.sup == nil {
		return
	}
	p.sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = p.sup.Wait(wctx)
}

// Submit spawns a capture task for msg if it carries the self-destruct
// marker. Cheap no-op otherwise.
func (p *Pipeline) Submit(msg *transport.Message) {
	if msg == nil || msg.Media == nil || !msg.SelfDestruct {
		return
	}
	if p.sup == nil {
		p.log.Warn("capture submitted before pipeline start")
		return
	}
	m := *msg
	p.sup.Go0("capture", func(ctx context.Context) {
		p.run(ctx, &m)
	})
}

func (p *Pipeline) run(ctx context.Context, msg *transport.Message) {
	started := time.Now()

	// Sender identity is best-effort: a missing sender yields a
	// placeholder, never an error.
	handle := ""
	if msg.FromUsername != "" {
		handle = "@" + msg.FromUsername
	}
	chatTitle := msg.ChatTitle
	if chatTitle == "" {
		if t, err := p.client.ChatTitle(ctx, msg.ChatID); err == nil {
			chatTitle = t
		}
	}

	data, err := p.client.Download(ctx, msg.Media.FileID)
	if err != nil {
		p.log.Warn("capture download failed", logx.Int("msg_id", msg.ID), logx.Err(err))
		p.record(ctx, msg, "", false, err, started)
		return
	}
	if len(data) == 0 {
		// The content may have already expired; abandon silently.
		p.log.Debug("capture payload empty", logx.Int("msg_id", msg.ID))
		return
	}

	// Deliberate bounded delay: base plus a per-message jitter derived
	// from the message's own identifier.
	delay := p.cfg.BaseDelay + time.Duration(msg.ID%25)*100*time.Millisecond
	if !p.sleep(ctx, delay) {
		return
	}

	class := Classify(msg.Media, data)
	savedAt := p.now()
	filename := "selfdestruct_" + savedAt.In(p.cfg.Location).Format("20060102_150405") + class.Ext

	caption := buildCaption(provenance{
		Text:         msg.Text,
		SenderName:   msg.FromName,
		SenderHandle: handle,
		SenderID:     msg.FromID,
		ChatTitle:    chatTitle,
		SavedAt:      savedAt,
	}, p.cfg.Location)

	out := transport.Outgoing{
		Bytes:      data,
		FileName:   filename,
		MIME:       class.MIME,
		Caption:    caption,
		Photo:      class.Kind == KindPhoto,
		Video:      class.Kind == KindVideo,
		VideoNote:  class.Round,
		Voice:      class.Kind == KindVoice,
		AsDocument: class.ForceDocument,
		Duration:   class.Duration,
		Width:      class.Width,
		Height:     class.Height,
		Streaming:  class.Streaming,
	}
	// Telegram refuses captions on video notes; the provenance goes out
	// as a separate message right after the media instead.
	if class.Round {
		out.Caption = ""
	}

	archive := transport.ChatTarget{ChatID: p.cfg.ArchiveChat, ThreadID: p.cfg.ArchiveThread}
	if err := p.client.SendMedia(ctx, archive, out, &transport.SendOptions{Silent: true}); err != nil {
		p.log.Warn("capture upload failed",
			logx.Int("msg_id", msg.ID),
			logx.String("kind", class.Kind.String()),
			logx.Err(err))
		p.record(ctx, msg, filename, false, err, started)
		return
	}
	if class.Round && caption != "" {
		if _, err := p.client.SendText(ctx, archive, caption, &transport.SendOptions{Silent: true}); err != nil {
			p.log.Warn("capture caption send failed", logx.Int("msg_id", msg.ID), logx.Err(err))
		}
	}

	p.log.Info("self-destruct media saved",
		logx.String("file", filename),
		logx.String("kind", class.Kind.String()),
		logx.Int("bytes", len(data)))
	p.record(ctx, msg, filename, true, nil, started)
}

func (p *Pipeline) record(ctx context.Context, msg *transport.Message, label string, ok bool, err error, started time.Time) {
	if p.audit == nil {
		return
	}
	e := storage.Entry{
		At:        time.Now(),
		Kind:      "capture",
		ChatID:    msg.ChatID,
		ThreadID:  msg.ThreadID,
		MessageID: msg.ID,
		Label:     label,
		OK:        ok,
		TookMS:    time.Since(started).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := p.audit.Append(ctx, e); aerr != nil {
		p.log.Debug("audit append failed", logx.Err(aerr))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
