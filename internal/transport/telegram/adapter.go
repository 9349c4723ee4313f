// Package telegram implements transport.Client on top of telebot's long
// polling Bot API client.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "heraldbot/internal/runtime/supervisor"
	kit "heraldbot/internal/transport"
	"heraldbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// SendRatePerSec throttles all outbound calls (Telegram dislikes
	// rapid-fire sends). 0 means the default of 20.
	SendRatePerSec int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, stop watcher).
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was
	// slower than the Telegram poll loop.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.SendRatePerSec
	if rps <= 0 {
		rps = 20
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	handle := func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		a.sendUpdate(kit.Update{Message: fromTele(m)})
		return nil
	}
	// Text and every media kind funnel into the same update stream; the
	// router decides what to do with them.
	a.bot.Handle(tele.OnText, handle)
	a.bot.Handle(tele.OnMedia, handle)
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))))
	sup := a.sup
	a.runMu.Unlock()

	// Stop telebot when the adapter context is cancelled.
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	// Telebot's Start() is a long-running loop. In some failure modes it
	// can exit unexpectedly; run it under a restart loop so the adapter
	// self-heals.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		if a.bot != nil {
			a.bot.Start()
		}
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, 500*time.Millisecond, 10*time.Second)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
	}
	// Cancelling the supervisor wakes the stop_on_cancel goroutine, which
	// owns the single bot.Stop call; a second Stop here could hang on
	// telebot's stop handshake after the poller already exited.
	if sup != nil {
		sup.Cancel()
	}

	// Grace window: keep shutdown snappy even if a getUpdates long-poll
	// is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if sup != nil {
		if err := sup.Wait(wctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				a.log.Warn("telegram stop timed out", logx.Err(err))
				return nil
			}
			a.log.Warn("telegram stop error", logx.Err(err))
		}
	}
	return nil
}

// ---- Client capability set ----

func (a *Adapter) ChatTitle(ctx context.Context, chatID int64) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}
	chat, err := a.bot.ChatByID(chatID)
	if err != nil {
		return "", err
	}
	if chat.Title != "" {
		return chat.Title, nil
	}
	return strings.TrimSpace(chat.FirstName + " " + chat.LastName), nil
}

func (a *Adapter) Forward(ctx context.Context, to kit.ChatTarget, source kit.MessageRef) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	stored := tele.StoredMessage{
		MessageID: strconv.Itoa(source.MessageID),
		ChatID:    source.ChatID,
	}
	opts := &tele.SendOptions{ThreadID: to.ThreadID}
	_, err := a.bot.Forward(tele.ChatID(to.ChatID), stored, opts)
	if err != nil {
		return mapForwardError(err)
	}
	return nil
}

// mapForwardError folds the platform's "message to forward not found"
// into the transport sentinel so the scheduler can self-heal the job.
func mapForwardError(err error) error {
	if errors.Is(err, tele.ErrNotFoundToForward) {
		return fmt.Errorf("%w: %v", kit.ErrSourceGone, err)
	}
	return err
}

func (a *Adapter) Download(ctx context.Context, fileID string) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	f, err := a.bot.FileByID(fileID)
	if err != nil {
		return nil, err
	}
	rc, err := a.bot.File(&f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, out kit.Outgoing, opt *kit.SendOptions) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	sendOpt := &tele.SendOptions{
		ThreadID:            to.ThreadID,
		DisableNotification: opt.Silent,
		ParseMode:           opt.ParseMode,
	}
	_, err := a.bot.Send(tele.ChatID(to.ChatID), toSendable(out), sendOpt)
	return err
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	sendOpt := &tele.SendOptions{
		ThreadID:              to.ThreadID,
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		DisableNotification:   opt.Silent,
	}
	if opt.ReplyTo != nil {
		sendOpt.ReplyTo = &tele.Message{
			ID:   opt.ReplyTo.MessageID,
			Chat: &tele.Chat{ID: opt.ReplyTo.ChatID},
		}
	}
	msg, err := a.bot.Send(tele.ChatID(to.ChatID), text, sendOpt)
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// toSendable maps an Outgoing onto the matching telebot media type.
func toSendable(out kit.Outgoing) interface{} {
	file := tele.FromReader(bytes.NewReader(out.Bytes))
	switch {
	case out.AsDocument:
		return &tele.Document{File: file, FileName: out.FileName, MIME: out.MIME, Caption: out.Caption}
	case out.Photo:
		return &tele.Photo{File: file, Caption: out.Caption}
	case out.VideoNote:
		length := out.Width
		if length <= 0 {
			length = 480
		}
		return &tele.VideoNote{File: file, Duration: out.Duration, Length: length}
	case out.Video:
		return &tele.Video{
			File:      file,
			Width:     out.Width,
			Height:    out.Height,
			Duration:  out.Duration,
			Streaming: out.Streaming,
			FileName:  out.FileName,
			MIME:      out.MIME,
			Caption:   out.Caption,
		}
	case out.Voice:
		return &tele.Voice{File: file, Duration: out.Duration, Caption: out.Caption}
	default:
		return &tele.Document{File: file, FileName: out.FileName, MIME: out.MIME, Caption: out.Caption}
	}
}
