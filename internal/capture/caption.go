package capture

import (
	"strconv"
	"strings"
	"time"
)

const defaultCaptionText = "Saved self-destruct media ✅"

// provenance carries the sender/chat strings used only to build a caption.
type provenance struct {
	Text         string
	SenderName   string
	SenderHandle string
	SenderID     int64
	ChatTitle    string
	SavedAt      time.Time
}

// buildCaption renders the archive caption. The timestamp is formatted in
// the pipeline's fixed reference timezone, never the host's local time.
func buildCaption(p provenance, loc *time.Location) string {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		text = defaultCaptionText
	}
	name := p.SenderName
	if name == "" {
		name = "Deleted Account"
	}
	handle := p.SenderHandle
	if handle == "" {
		handle = "—"
	}
	chat := p.ChatTitle
	if chat == "" {
		chat = "Private Chat"
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n")
	b.WriteString("🪪 Full Name: " + name + "\n")
	b.WriteString("👤 Username: " + handle + "\n")
	b.WriteString("🆔 User ID: " + strconv.FormatInt(p.SenderID, 10) + "\n")
	b.WriteString("💬 Chat: " + chat + "\n")
	b.WriteString("📅 Saved At: " + p.SavedAt.In(loc).Format("2006-01-02 15:04:05"))
	return b.String()
}
