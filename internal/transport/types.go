// Package transport defines the adapter-neutral messaging types and the
// Client capability set consumed by the banner scheduler, the capture
// pipeline, and the command router.
package transport

import "context"

type Update struct {
	Message *Message
}

// Message is one inbound message, flattened to what the bot consumes.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	ChatTitle    string
	Private      bool
	Text         string

	// ReplyTo references the message this one replies to (nil if none).
	ReplyTo *MessageRef

	// Media is set when the message carries an attachment.
	Media *MediaInfo

	// SelfDestruct marks platform-ephemeral media (deleted after view or
	// on a timer).
	SelfDestruct bool
}

// MediaInfo describes the structural attributes of an attachment as
// reported by the platform. Exactly one of the kind flags is set for
// native media; Document covers everything generic.
type MediaInfo struct {
	FileID    string
	Photo     bool
	Video     bool
	VideoNote bool
	Voice     bool
	Animation bool
	Document  bool

	MIME     string
	FileName string
	Duration int // seconds
	Width    int
	Height   int
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
	ReplyTo        *MessageRef
}

// Outgoing is one media payload to upload and send. Kind flags mirror
// MediaInfo; AsDocument forces generic-file delivery regardless of kind.
type Outgoing struct {
	Bytes    []byte
	FileName string
	MIME     string
	Caption  string

	Photo      bool
	Video      bool
	VideoNote  bool
	Voice      bool
	AsDocument bool

	Duration  int
	Width     int
	Height    int
	Streaming bool
}

// Client is the messaging capability set the core consumes. Session
// bootstrap and login are owned by the adapter.
type Client interface {
	// ChatTitle resolves a chat's display title ("" when unresolvable).
	ChatTitle(ctx context.Context, chatID int64) (string, error)

	// Forward re-delivers an existing message to a destination.
	// A gone source yields an error matching ErrSourceGone.
	Forward(ctx context.Context, to ChatTarget, source MessageRef) error

	// Download fetches a media payload fully into memory.
	Download(ctx context.Context, fileID string) ([]byte, error)

	// SendMedia uploads bytes and delivers them with attachment metadata.
	SendMedia(ctx context.Context, to ChatTarget, out Outgoing, opt *SendOptions) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
