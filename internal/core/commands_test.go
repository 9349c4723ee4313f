package core

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"heraldbot/internal/alias"
	"heraldbot/internal/banner"
	"heraldbot/internal/transport"
	"heraldbot/pkg/logx"
)

type routerFake struct {
	mu      sync.Mutex
	replies []string
	title   string
}

func (f *routerFake) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	f.replies = append(f.replies, text)
	f.mu.Unlock()
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *routerFake) ChatTitle(ctx context.Context, chatID int64) (string, error) {
	return f.title, nil
}

func (f *routerFake) Forward(ctx context.Context, to transport.ChatTarget, source transport.MessageRef) error {
	return nil
}
func (f *routerFake) Download(ctx context.Context, fileID string) ([]byte, error) { return nil, nil }
func (f *routerFake) SendMedia(ctx context.Context, to transport.ChatTarget, out transport.Outgoing, opt *transport.SendOptions) error {
	return nil
}

func (f *routerFake) lastReply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

func (f *routerFake) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

func newTestRouter(t *testing.T, client transport.Client, operators []int64) (*Router, *banner.Registry) {
	t.Helper()
	dir := t.TempDir()
	store := banner.NewStore(filepath.Join(dir, "banners.json"), time.UTC, logx.Nop())
	reg := banner.NewRegistry(store, banner.DefaultMinMinutes, logx.Nop())
	aliases := alias.NewStore(filepath.Join(dir, "aliases.json"), logx.Nop())
	r := NewRouter(client, reg, aliases, operators, time.UTC, logx.Nop())
	r.now = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }
	return r, reg
}

func commandMessage(text string) *transport.Message {
	return &transport.Message{
		ID:        50,
		ChatID:    -100123,
		FromID:    7,
		ChatTitle: "Deals",
		Text:      text,
	}
}

func TestRouterSetCreatesJob(t *testing.T) {
	t.Parallel()
	client := &routerFake{}
	r, reg := newTestRouter(t, client, nil)

	msg := commandMessage("/set 30m")
	msg.ReplyTo = &transport.MessageRef{ChatID: -100123, MessageID: 42}
	r.HandleMessage(context.Background(), msg)

	job, ok := reg.Get(banner.MakeKey(-100123, 0))
	if !ok {
		t.Fatalf("no job created")
	}
	if job.SourceMessageID != 42 || job.IntervalMinutes != 30 {
		t.Fatalf("unexpected job: %+v", job)
	}
	want := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	if !job.NextRunAt.Equal(want) {
		t.Fatalf("NextRunAt = %v, want %v", job.NextRunAt, want)
	}
	if job.DisplayLabel != "Deals" {
		t.Fatalf("DisplayLabel = %q, want chat title", job.DisplayLabel)
	}
	if !strings.Contains(client.lastReply(), "Banner activated") {
		t.Fatalf("unexpected reply %q", client.lastReply())
	}
}

func TestRouterSetRequiresReply(t *testing.T) {
	t.Parallel()
	client := &routerFake{}
	r, reg := newTestRouter(t, client, nil)

	r.HandleMessage(context.Background(), commandMessage("/set 30m"))

	if reg.Len() != 0 {
		t.Fatalf("job created without a reply target")
	}
	if client.lastReply() != msgSetReplyNeeded {
		t.Fatalf("reply = %q, want usage hint", client.lastReply())
	}
}

func TestRouterSetRejectsBadInterval(t *testing.T) {
	t.Parallel()
	client := &routerFake{}
	r, reg := newTestRouter(t, client, nil)

	msg := commandMessage("/set soon")
	msg.ReplyTo = &transport.MessageRef{ChatID: -100123, MessageID: 42}
	r.HandleMessage(context.Background(), msg)

	if reg.Len() != 0 {
		t.Fatalf("job created from invalid interval")
	}
	if client.lastReply() != msgSetUsage {
		t.Fatalf("reply = %q, want usage", client.lastReply())
	}
}

func TestRouterStop(t *testing.T) {
	t.Parallel()
	client := &routerFake{}
	r, reg := newTestRouter(t, client, nil)

	msg := commandMessage("/set 30m")
	msg.ReplyTo = &transport.MessageRef{ChatID: -100123, MessageID: 42}
	r.HandleMessage(context.Background(), msg)

	r.HandleMessage(context.Background(), commandMessage("/stop"))
	if reg.Len() != 0 {
		t.Fatalf("stop did not remove the job")
	}

	r.HandleMessage(context.Background(), commandMessage("/stop"))
	if client.lastReply() != msgStopNothing {
		t.Fatalf("second stop replied %q", client.lastReply())
	}
}

func TestRouterStopAllGlobalOnlyInPrivate(t *testing.T) {
	t.Parallel()
	client := &routerFake{}
	r, reg := newTestRouter(t, client, nil)

	for _, chat := range []int64{-1, -2, -3} {
		msg := commandMessage("/set 30m")
		msg.ChatID = chat
		msg.ReplyTo = &transport.MessageRef{ChatID: chat, MessageID: 42}
		r.HandleMessage(context.Background(), msg)
	}

	// In a group, /stopall degrades to a local stop.
	group := commandMessage("/stopall")
	group.ChatID = -1
	r.HandleMessage(context.Background(), group)
	if reg.Len() != 2 {
		t.Fatalf("group /stopall cleared globally: %d jobs left", reg.Len())
	}
	if client.lastReply() != msgStopAllHint {
		t.Fatalf("group /stopall replied %q", client.lastReply())
	}

	private := commandMessage("/stopall")
	private.ChatID = 7
	private.Private = true
	r.HandleMessage(context.Background(), private)
	if reg.Len() != 0 {
		t.Fatalf("private /stopall left %d jobs", reg.Len())
	}
}

func TestRouterOperatorGate(t *testing.T) {
	t.Parallel()
	client := &routerFake{}
	r, reg := newTestRouter(t, client, []int64{1000})

	msg := commandMessage("/set 30m")
	msg.ReplyTo = &transport.MessageRef{ChatID: -100123, MessageID: 42}
	r.HandleMessage(context.Background(), msg)

	if reg.Len() != 0 {
		t.Fatalf("non-operator created a job")
	}
	if client.replyCount() != 0 {
		t.Fatalf("non-operator got a gated-command reply: %q", client.lastReply())
	}

	// /ping stays open to everyone.
	r.HandleMessage(context.Background(), commandMessage("/ping"))
	if client.lastReply() != "pong" {
		t.Fatalf("ping replied %q", client.lastReply())
	}

	msg.FromID = 1000
	r.HandleMessage(context.Background(), msg)
	if reg.Len() != 1 {
		t.Fatalf("operator could not create a job")
	}
}

func TestRouterAliasLifecycle(t *testing.T) {
	t.Parallel()
	client := &routerFake{}
	r, _ := newTestRouter(t, client, nil)

	r.HandleMessage(context.Background(), commandMessage("/alias set rules Be kind. No spam."))
	if !strings.Contains(client.lastReply(), "Alias saved") {
		t.Fatalf("alias set replied %q", client.lastReply())
	}

	// Bare text matching an alias name triggers the canned reply.
	r.HandleMessage(context.Background(), commandMessage("RULES"))
	if client.lastReply() != "Be kind. No spam." {
		t.Fatalf("alias lookup replied %q", client.lastReply())
	}

	// Unrelated text stays silent.
	before := client.replyCount()
	r.HandleMessage(context.Background(), commandMessage("hello there"))
	if client.replyCount() != before {
		t.Fatalf("non-alias text got a reply: %q", client.lastReply())
	}

	r.HandleMessage(context.Background(), commandMessage("/alias del rules"))
	r.HandleMessage(context.Background(), commandMessage("rules"))
	if client.lastReply() != "Alias removed: rules" {
		t.Fatalf("deleted alias still answers: %q", client.lastReply())
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		cmd  string
		args string
	}{
		{in: "/set 30m", cmd: "set", args: "30m"},
		{in: "/set@heraldbot 30m", cmd: "set", args: "30m"},
		{in: "/LIST", cmd: "list"},
		{in: "/ping", cmd: "ping"},
		{in: "/alias set a b", cmd: "alias", args: "set a b"},
	}
	for _, tt := range tests {
		cmd, args := splitCommand(tt.in)
		if cmd != tt.cmd || args != tt.args {
			t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)", tt.in, cmd, args, tt.cmd, tt.args)
		}
	}
}
