package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"heraldbot/internal/alias"
	"heraldbot/internal/banner"
	"heraldbot/internal/transport"
	"heraldbot/pkg/logx"
)

// Operator-facing texts.
const (
	msgSetUsage       = "Usage: reply to a message with /set 30m (or 2h, 1h30m)"
	msgSetReplyNeeded = "Reply to a message to set it as the banner."
	msgStopNothing    = "No active banner in this chat."
	msgStopAllNothing = "No active banners to stop."
	msgStopAllHint    = "Banner stopped in this chat only. Use /stopall in a private chat with me to stop everything."
	msgListEmpty      = "No active banners right now."
	msgAliasUsage     = "Usage: /alias set <name> <text> | /alias del <name> | /alias list"
)

// Router dispatches operator commands and alias lookups. It is stateless
// branch-and-reply glue: all durable state lives in the registry and the
// alias store.
type Router struct {
	client    transport.Client
	reg       *banner.Registry
	aliases   *alias.Store
	operators map[int64]bool
	loc       *time.Location
	log       logx.Logger

	now func() time.Time
}

func NewRouter(client transport.Client, reg *banner.Registry, aliases *alias.Store, operatorIDs []int64, loc *time.Location, log logx.Logger) *Router {
	ops := make(map[int64]bool, len(operatorIDs))
	for _, id := range operatorIDs {
		ops[id] = true
	}
	if loc == nil {
		loc = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		client:    client,
		reg:       reg,
		aliases:   aliases,
		operators: ops,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// HandleMessage routes one inbound message. Unknown input is ignored
// silently, like the original: a chat bot should never spam "unknown
// command" into group chats.
func (r *Router) HandleMessage(ctx context.Context, msg *transport.Message) {
	if msg == nil || msg.Text == "" {
		return
	}
	text := strings.TrimSpace(msg.Text)

	if !strings.HasPrefix(text, "/") {
		r.tryAlias(ctx, msg, text)
		return
	}

	cmd, args := splitCommand(text)
	switch cmd {
	case "ping":
		r.reply(ctx, msg, "pong")
	case "set":
		if !r.authorized(msg) {
			return
		}
		r.handleSet(ctx, msg, args)
	case "stop":
		if !r.authorized(msg) {
			return
		}
		r.handleStop(ctx, msg)
	case "stopall":
		if !r.authorized(msg) {
			return
		}
		r.handleStopAll(ctx, msg)
	case "list":
		if !r.authorized(msg) {
			return
		}
		r.handleList(ctx, msg)
	case "alias":
		if !r.authorized(msg) {
			return
		}
		r.handleAlias(ctx, msg, args)
	}
}

// authorized enforces the operator allow-list. An empty list means open
// access (single-owner deployments often skip it).
func (r *Router) authorized(msg *transport.Message) bool {
	if len(r.operators) == 0 {
		return true
	}
	return r.operators[msg.FromID]
}

func (r *Router) handleSet(ctx context.Context, msg *transport.Message, args string) {
	if msg.ReplyTo == nil {
		r.reply(ctx, msg, msgSetReplyNeeded)
		return
	}
	if strings.TrimSpace(args) == "" {
		r.reply(ctx, msg, msgSetUsage)
		return
	}
	mins, err := ParseIntervalMinutes(args)
	if err != nil {
		r.reply(ctx, msg, msgSetUsage)
		return
	}

	label := r.resolveLabel(ctx, msg)
	now := r.now()
	job := banner.Job{
		DestChat:        msg.ChatID,
		DestThread:      msg.ThreadID,
		SourceChat:      msg.ReplyTo.ChatID,
		SourceMessageID: msg.ReplyTo.MessageID,
		IntervalMinutes: mins,
		NextRunAt:       now.Add(time.Duration(mins) * time.Minute),
		DisplayLabel:    label,
	}
	if err := r.reg.Upsert(job); err != nil {
		r.reply(ctx, msg, fmt.Sprintf("Banner not set: %v", err))
		return
	}
	r.reply(ctx, msg, fmt.Sprintf(
		"Banner activated ✅\nChat: %s\nInterval: every %s\nNext send: %s",
		label, FormatIntervalMinutes(mins), job.NextRunAt.In(r.loc).Format("15:04:05")))
}

func (r *Router) handleStop(ctx context.Context, msg *transport.Message) {
	key := banner.MakeKey(msg.ChatID, msg.ThreadID)
	job, ok := r.reg.Get(key)
	if !ok || !r.reg.Remove(key) {
		r.reply(ctx, msg, msgStopNothing)
		return
	}
	r.reply(ctx, msg, "Banner stopped 🚫\nChat: "+job.DisplayLabel)
}

func (r *Router) handleStopAll(ctx context.Context, msg *transport.Message) {
	// Global clear only from the private chat; anywhere else it degrades
	// to a local stop with a hint, so a fat-fingered /stopall in a group
	// cannot wipe every destination.
	if msg.Private {
		n := r.reg.Clear()
		if n == 0 {
			r.reply(ctx, msg, msgStopAllNothing)
			return
		}
		r.reply(ctx, msg, fmt.Sprintf("All banners stopped 🗑️\nTotal stopped: %d", n))
		return
	}
	if r.reg.Remove(banner.MakeKey(msg.ChatID, msg.ThreadID)) {
		r.reply(ctx, msg, msgStopAllHint)
	} else {
		r.reply(ctx, msg, msgStopNothing)
	}
}

func (r *Router) handleList(ctx context.Context, msg *transport.Message) {
	jobs := r.reg.List()
	if len(jobs) == 0 {
		r.reply(ctx, msg, msgListEmpty)
		return
	}
	var b strings.Builder
	b.WriteString("Active banners 📃\n")
	for i, job := range jobs {
		fmt.Fprintf(&b, "%d. %s\n   Interval: every %s\n   Next: %s\n",
			i+1, job.DisplayLabel,
			FormatIntervalMinutes(job.IntervalMinutes),
			job.NextRunAt.In(r.loc).Format("15:04:05"))
	}
	r.reply(ctx, msg, b.String())
}

func (r *Router) handleAlias(ctx context.Context, msg *transport.Message, args string) {
	if r.aliases == nil {
		return
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		r.reply(ctx, msg, msgAliasUsage)
		return
	}
	switch fields[0] {
	case "set":
		if len(fields) < 3 {
			r.reply(ctx, msg, msgAliasUsage)
			return
		}
		name := fields[1]
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args), fields[0]))
		text := strings.TrimSpace(strings.TrimPrefix(rest, name))
		r.aliases.Set(name, text)
		r.reply(ctx, msg, "Alias saved: "+strings.ToLower(name))
	case "del":
		if len(fields) != 2 {
			r.reply(ctx, msg, msgAliasUsage)
			return
		}
		if r.aliases.Delete(fields[1]) {
			r.reply(ctx, msg, "Alias removed: "+strings.ToLower(fields[1]))
		} else {
			r.reply(ctx, msg, "No such alias.")
		}
	case "list":
		names := r.aliases.Names()
		if len(names) == 0 {
			r.reply(ctx, msg, "No aliases defined.")
			return
		}
		r.reply(ctx, msg, "Aliases: "+strings.Join(names, ", "))
	default:
		r.reply(ctx, msg, msgAliasUsage)
	}
}

// tryAlias answers a plain message exactly matching an alias name.
func (r *Router) tryAlias(ctx context.Context, msg *transport.Message, text string) {
	if r.aliases == nil {
		return
	}
	if reply, ok := r.aliases.Get(text); ok {
		r.reply(ctx, msg, reply)
	}
}

func (r *Router) resolveLabel(ctx context.Context, msg *transport.Message) string {
	if msg.ChatTitle != "" {
		return msg.ChatTitle
	}
	if t, err := r.client.ChatTitle(ctx, msg.ChatID); err == nil && t != "" {
		return t
	}
	if msg.Private {
		return "Private Chat"
	}
	return fmt.Sprintf("chat %d", msg.ChatID)
}

func (r *Router) reply(ctx context.Context, msg *transport.Message, text string) {
	ref := &transport.MessageRef{ChatID: msg.ChatID, ThreadID: msg.ThreadID, MessageID: msg.ID}
	to := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if _, err := r.client.SendText(ctx, to, text, &transport.SendOptions{ReplyTo: ref}); err != nil {
		r.log.Warn("command reply failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
	}
}

// splitCommand strips the leading slash and an optional @botname suffix,
// returning the lower-cased command and its raw argument string.
func splitCommand(text string) (cmd, args string) {
	rest := strings.TrimPrefix(text, "/")
	if i := strings.IndexAny(rest, " \n"); i >= 0 {
		cmd, args = rest[:i], strings.TrimSpace(rest[i+1:])
	} else {
		cmd = rest
	}
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), args
}
