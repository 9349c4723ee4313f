package telegram

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "heraldbot/internal/transport"
)

// fromTele flattens a telebot message into the transport kit shape.
func fromTele(m *tele.Message) *kit.Message {
	msg := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		Text:     m.Text,
		Private:  m.Chat.Type == tele.ChatPrivate,
	}
	if m.Chat.Title != "" {
		msg.ChatTitle = m.Chat.Title
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
		msg.FromName = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
	}
	if m.ReplyTo != nil {
		msg.ReplyTo = &kit.MessageRef{
			ChatID:    m.ReplyTo.Chat.ID,
			ThreadID:  m.ReplyTo.ThreadID,
			MessageID: m.ReplyTo.ID,
		}
	}
	if mi := mediaInfo(m); mi != nil {
		msg.Media = mi
		if msg.Text == "" {
			msg.Text = m.Caption
		}
		// The closest Bot API marker for view-bounded media; user-account
		// TTL media is not visible to bot sessions.
		msg.SelfDestruct = m.HasMediaSpoiler
	}
	return msg
}

// mediaInfo extracts the structural attachment attributes the capture
// pipeline classifies on. Returns nil for plain text messages.
func mediaInfo(m *tele.Message) *kit.MediaInfo {
	switch {
	case m.Photo != nil:
		return &kit.MediaInfo{
			FileID: m.Photo.FileID,
			Photo:  true,
			Width:  m.Photo.Width,
			Height: m.Photo.Height,
		}
	case m.VideoNote != nil:
		return &kit.MediaInfo{
			FileID:    m.VideoNote.FileID,
			VideoNote: true,
			Duration:  m.VideoNote.Duration,
			Width:     m.VideoNote.Length,
			Height:    m.VideoNote.Length,
		}
	case m.Video != nil:
		return &kit.MediaInfo{
			FileID:   m.Video.FileID,
			Video:    true,
			MIME:     m.Video.MIME,
			FileName: m.Video.FileName,
			Duration: m.Video.Duration,
			Width:    m.Video.Width,
			Height:   m.Video.Height,
		}
	case m.Voice != nil:
		return &kit.MediaInfo{
			FileID:   m.Voice.FileID,
			Voice:    true,
			MIME:     m.Voice.MIME,
			Duration: m.Voice.Duration,
		}
	case m.Animation != nil:
		return &kit.MediaInfo{
			FileID:    m.Animation.FileID,
			Animation: true,
			MIME:      m.Animation.MIME,
			FileName:  m.Animation.FileName,
			Duration:  m.Animation.Duration,
			Width:     m.Animation.Width,
			Height:    m.Animation.Height,
		}
	case m.Document != nil:
		return &kit.MediaInfo{
			FileID:   m.Document.FileID,
			Document: true,
			MIME:     m.Document.MIME,
			FileName: m.Document.FileName,
		}
	default:
		return nil
	}
}
