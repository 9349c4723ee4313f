package telegram

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "heraldbot/internal/transport"
)

func TestFromTeleText(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		ID:   10,
		Chat: &tele.Chat{ID: -100123, Type: tele.ChatSuperGroup, Title: "Deals"},
		Sender: &tele.User{
			ID:        777,
			Username:  "jodoe",
			FirstName: "Jo",
			LastName:  "Doe",
		},
		Text:     "/set 30m",
		ThreadID: 5,
		ReplyTo: &tele.Message{
			ID:   9,
			Chat: &tele.Chat{ID: -100123},
		},
	}

	got := fromTele(m)
	if got.ID != 10 || got.ChatID != -100123 || got.ThreadID != 5 {
		t.Fatalf("basic fields: %+v", got)
	}
	if got.Private {
		t.Errorf("supergroup flagged private")
	}
	if got.ChatTitle != "Deals" {
		t.Errorf("ChatTitle = %q", got.ChatTitle)
	}
	if got.FromID != 777 || got.FromUsername != "jodoe" || got.FromName != "Jo Doe" {
		t.Errorf("sender: %+v", got)
	}
	if got.ReplyTo == nil || got.ReplyTo.MessageID != 9 || got.ReplyTo.ChatID != -100123 {
		t.Errorf("ReplyTo = %+v", got.ReplyTo)
	}
	if got.Media != nil || got.SelfDestruct {
		t.Errorf("text message grew media attributes: %+v", got)
	}
}

func TestFromTeleSpoilerPhoto(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		ID:              11,
		Chat:            &tele.Chat{ID: 555, Type: tele.ChatPrivate},
		Sender:          &tele.User{ID: 777, FirstName: "Jo"},
		Photo:           &tele.Photo{File: tele.File{FileID: "file-abc"}, Width: 1280, Height: 720},
		Caption:         "look",
		HasMediaSpoiler: true,
	}

	got := fromTele(m)
	if !got.Private {
		t.Errorf("private chat not flagged")
	}
	if got.Media == nil || !got.Media.Photo || got.Media.FileID != "file-abc" {
		t.Fatalf("media = %+v", got.Media)
	}
	if got.Media.Width != 1280 || got.Media.Height != 720 {
		t.Errorf("dimensions = %dx%d", got.Media.Width, got.Media.Height)
	}
	if !got.SelfDestruct {
		t.Errorf("spoiler media not marked self-destruct")
	}
	if got.Text != "look" {
		t.Errorf("caption not folded into Text: %q", got.Text)
	}
}

func TestMediaInfoKinds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		msg   *tele.Message
		check func(t *testing.T, mi *kit.MediaInfo)
	}{
		{
			name: "video note square",
			msg:  &tele.Message{VideoNote: &tele.VideoNote{File: tele.File{FileID: "vn"}, Duration: 7, Length: 360}},
			check: func(t *testing.T, mi *kit.MediaInfo) {
				if !mi.VideoNote || mi.Width != 360 || mi.Height != 360 || mi.Duration != 7 {
					t.Errorf("video note: %+v", mi)
				}
			},
		},
		{
			name: "voice",
			msg:  &tele.Message{Voice: &tele.Voice{File: tele.File{FileID: "v"}, Duration: 3, MIME: "audio/ogg"}},
			check: func(t *testing.T, mi *kit.MediaInfo) {
				if !mi.Voice || mi.MIME != "audio/ogg" {
					t.Errorf("voice: %+v", mi)
				}
			},
		},
		{
			name: "document",
			msg:  &tele.Message{Document: &tele.Document{File: tele.File{FileID: "d"}, MIME: "application/pdf", FileName: "a.pdf"}},
			check: func(t *testing.T, mi *kit.MediaInfo) {
				if !mi.Document || mi.FileName != "a.pdf" {
					t.Errorf("document: %+v", mi)
				}
			},
		},
		{
			name: "plain text",
			msg:  &tele.Message{Text: "hi"},
			check: func(t *testing.T, mi *kit.MediaInfo) {
				if mi != nil {
					t.Errorf("text message produced media: %+v", mi)
				}
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.check(t, mediaInfo(tt.msg))
		})
	}
}

func TestMapForwardError(t *testing.T) {
	t.Parallel()
	if got := mapForwardError(nil); got != nil {
		t.Fatalf("nil error mapped to %v", got)
	}
	plain := errors.New("flood wait")
	if got := mapForwardError(plain); !errors.Is(got, plain) || kit.IsSourceGone(got) {
		t.Fatalf("transient error mis-mapped: %v", got)
	}
	if got := mapForwardError(tele.ErrNotFoundToForward); !kit.IsSourceGone(got) {
		t.Fatalf("forward-not-found not folded into source-gone: %v", got)
	}
}

func TestToSendable(t *testing.T) {
	t.Parallel()
	photo := toSendable(kit.Outgoing{Bytes: []byte{1}, Photo: true, Caption: "c"})
	if _, ok := photo.(*tele.Photo); !ok {
		t.Fatalf("photo mapped to %T", photo)
	}
	forced := toSendable(kit.Outgoing{Bytes: []byte{1}, Photo: true, AsDocument: true, FileName: "x.png"})
	if _, ok := forced.(*tele.Document); !ok {
		t.Fatalf("forced document mapped to %T", forced)
	}
	vn := toSendable(kit.Outgoing{Bytes: []byte{1}, VideoNote: true})
	note, ok := vn.(*tele.VideoNote)
	if !ok {
		t.Fatalf("video note mapped to %T", vn)
	}
	if note.Length != 480 {
		t.Fatalf("video note length fallback = %d, want 480", note.Length)
	}
	unknown := toSendable(kit.Outgoing{Bytes: []byte{1}, FileName: "blob.file"})
	if _, ok := unknown.(*tele.Document); !ok {
		t.Fatalf("unknown payload mapped to %T", unknown)
	}
}
