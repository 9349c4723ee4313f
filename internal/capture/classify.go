// Package capture saves self-destructing media before the platform erases
// it: download, classify, and silent re-upload to an archive chat with a
// provenance caption. Every capture is a single best-effort attempt; a
// missed one is an accepted loss.
package capture

import (
	"bytes"
	"path/filepath"
	"strings"

	"heraldbot/internal/transport"
)

// Kind is the closed set of media shapes the pipeline distinguishes.
type Kind int

const (
	KindUnknown Kind = iota
	KindPhoto
	KindRoundVideo
	KindVideo
	KindVoice
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindPhoto:
		return "photo"
	case KindRoundVideo:
		return "round_video"
	case KindVideo:
		return "video"
	case KindVoice:
		return "voice"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Classification determines the file extension, whether to force
// generic-file delivery vs native media rendering, and which attachment
// metadata to carry forward unchanged from the source.
type Classification struct {
	Kind Kind
	Ext  string
	MIME string

	// ForceDocument delivers the payload as a generic file instead of
	// native media.
	ForceDocument bool

	Duration  int
	Width     int
	Height    int
	Round     bool
	Streaming bool
}

// Binary signatures consulted only when no structural type is present.
var (
	magicPNG  = []byte{0x89, 'P', 'N', 'G'}
	magicGIF  = []byte("GIF8")
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
)

// Classify inspects structural attributes first and falls back to
// signature sniffing on the leading bytes. It is pure: no I/O, no clock.
func Classify(mi *transport.MediaInfo, head []byte) Classification {
	switch {
	case mi == nil:
		return sniff(head)

	case mi.Photo:
		return Classification{
			Kind:   KindPhoto,
			Ext:    ".jpg",
			MIME:   "image/jpeg",
			Width:  mi.Width,
			Height: mi.Height,
		}

	case mi.VideoNote:
		w := mi.Width
		if w <= 0 {
			w = 480
		}
		return Classification{
			Kind:      KindRoundVideo,
			Ext:       ".mp4",
			MIME:      "video/mp4",
			Duration:  mi.Duration,
			Width:     w,
			Height:    w,
			Round:     true,
			Streaming: true,
		}

	case mi.Video:
		return Classification{
			Kind:      KindVideo,
			Ext:       ".mp4",
			MIME:      orDefault(mi.MIME, "video/mp4"),
			Duration:  mi.Duration,
			Width:     mi.Width,
			Height:    mi.Height,
			Streaming: true,
		}

	case mi.Voice:
		return Classification{
			Kind:     KindVoice,
			Ext:      ".ogg",
			MIME:     orDefault(mi.MIME, "audio/ogg"),
			Duration: mi.Duration,
		}

	case mi.Animation, mi.Document:
		return classifyDocument(mi)

	default:
		return sniff(head)
	}
}

func classifyDocument(mi *transport.MediaInfo) Classification {
	c := Classification{
		Kind:          KindDocument,
		MIME:          mi.MIME,
		ForceDocument: true,
		Duration:      mi.Duration,
		Width:         mi.Width,
		Height:        mi.Height,
	}
	mime := strings.ToLower(strings.TrimSpace(mi.MIME))
	switch {
	case mime == "image/gif":
		c.Ext = ".gif"
	case strings.HasPrefix(mime, "video/"):
		c.Ext = ".mp4"
	default:
		if ext := filepath.Ext(mi.FileName); ext != "" {
			c.Ext = ext
		} else {
			c.Ext = ".file"
		}
	}
	return c
}

func sniff(head []byte) Classification {
	switch {
	case bytes.HasPrefix(head, magicPNG):
		return Classification{Kind: KindUnknown, Ext: ".png", MIME: "image/png", ForceDocument: true}
	case bytes.HasPrefix(head, magicGIF):
		return Classification{Kind: KindUnknown, Ext: ".gif", MIME: "image/gif", ForceDocument: true}
	case bytes.HasPrefix(head, magicJPEG):
		// JPEG renders fine natively even without structural attributes.
		return Classification{Kind: KindPhoto, Ext: ".jpg", MIME: "image/jpeg"}
	default:
		return Classification{Kind: KindUnknown, Ext: ".file", MIME: "application/octet-stream", ForceDocument: true}
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
