package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"heraldbot/internal/transport"
	"heraldbot/pkg/logx"
)

type sentMedia struct {
	to  transport.ChatTarget
	out transport.Outgoing
	opt *transport.SendOptions
}

type sentText struct {
	to   transport.ChatTarget
	text string
	opt  *transport.SendOptions
}

type captureFake struct {
	mu          sync.Mutex
	data        []byte
	downloadErr error
	sendErr     error
	title       string
	sent        []sentMedia
	texts       []sentText
}

func (f *captureFake) Download(ctx context.Context, fileID string) ([]byte, error) {
	return f.data, f.downloadErr
}

func (f *captureFake) ChatTitle(ctx context.Context, chatID int64) (string, error) {
	return f.title, nil
}

func (f *captureFake) SendMedia(ctx context.Context, to transport.ChatTarget, out transport.Outgoing, opt *transport.SendOptions) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMedia{to: to, out: out, opt: opt})
	f.mu.Unlock()
	return f.sendErr
}

func (f *captureFake) Forward(ctx context.Context, to transport.ChatTarget, source transport.MessageRef) error {
	return nil
}

func (f *captureFake) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	f.texts = append(f.texts, sentText{to: to, text: text, opt: opt})
	f.mu.Unlock()
	return transport.MessageRef{}, nil
}

func (f *captureFake) sentMedia() []sentMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMedia(nil), f.sent...)
}

func (f *captureFake) sentTexts() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.texts...)
}

var jpegHead = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

func selfDestructMessage() *transport.Message {
	return &transport.Message{
		ID:           30, // jitter: 30 % 25 = 5 ticks of 100ms
		ChatID:       555,
		FromID:       12345,
		FromUsername: "jodoe",
		FromName:     "Jo Doe",
		Private:      true,
		Media:        &transport.MediaInfo{Photo: true, FileID: "file-abc"},
		SelfDestruct: true,
	}
}

func newTestPipeline(client transport.Client) (*Pipeline, *[]time.Duration) {
	p := New(client, nil, Config{ArchiveChat: -100999, BaseDelay: 2 * time.Second, Location: time.UTC}, logx.Nop())
	p.now = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }
	var delays []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) bool {
		delays = append(delays, d)
		return true
	}
	return p, &delays
}

func TestPipelineCapturesPhoto(t *testing.T) {
	t.Parallel()
	client := &captureFake{data: jpegHead}
	p, delays := newTestPipeline(client)

	p.run(context.Background(), selfDestructMessage())

	sent := client.sentMedia()
	if len(sent) != 1 {
		t.Fatalf("SendMedia called %d times, want 1", len(sent))
	}
	got := sent[0]
	if got.to.ChatID != -100999 {
		t.Errorf("sent to chat %d, want archive -100999", got.to.ChatID)
	}
	if got.opt == nil || !got.opt.Silent {
		t.Errorf("archive send must be silent, got %+v", got.opt)
	}
	if !got.out.Photo || got.out.AsDocument {
		t.Errorf("jpeg payload not sent as native photo: %+v", got.out)
	}
	if !strings.HasPrefix(got.out.FileName, "selfdestruct_") || !strings.HasSuffix(got.out.FileName, ".jpg") {
		t.Errorf("unexpected filename %q", got.out.FileName)
	}
	for _, want := range []string{"Jo Doe", "@jodoe", "12345", "Private Chat"} {
		if !strings.Contains(got.out.Caption, want) {
			t.Errorf("caption missing %q:\n%s", want, got.out.Caption)
		}
	}
	if n := len(client.sentTexts()); n != 0 {
		t.Errorf("captionable media got %d follow-up texts", n)
	}

	if len(*delays) != 1 {
		t.Fatalf("sleep called %d times, want 1", len(*delays))
	}
	want := 2*time.Second + 500*time.Millisecond
	if (*delays)[0] != want {
		t.Errorf("capture delay = %v, want %v", (*delays)[0], want)
	}
}

func TestPipelineCapturesRoundVideoWithFollowupCaption(t *testing.T) {
	t.Parallel()
	client := &captureFake{data: []byte{1, 2, 3}}
	p, _ := newTestPipeline(client)

	msg := selfDestructMessage()
	msg.Media = &transport.MediaInfo{VideoNote: true, FileID: "file-vn", Duration: 7}
	p.run(context.Background(), msg)

	sent := client.sentMedia()
	if len(sent) != 1 {
		t.Fatalf("SendMedia called %d times, want 1", len(sent))
	}
	if !sent[0].out.VideoNote {
		t.Fatalf("payload not sent as video note: %+v", sent[0].out)
	}
	if sent[0].out.Caption != "" {
		t.Fatalf("video note carried a caption the platform would reject: %q", sent[0].out.Caption)
	}

	texts := client.sentTexts()
	if len(texts) != 1 {
		t.Fatalf("follow-up caption sent %d times, want 1", len(texts))
	}
	got := texts[0]
	if got.to.ChatID != -100999 {
		t.Errorf("caption went to chat %d, want archive -100999", got.to.ChatID)
	}
	if got.opt == nil || !got.opt.Silent {
		t.Errorf("caption must be silent, got %+v", got.opt)
	}
	for _, want := range []string{"Jo Doe", "@jodoe", "12345"} {
		if !strings.Contains(got.text, want) {
			t.Errorf("follow-up caption missing %q:\n%s", want, got.text)
		}
	}
}

func TestPipelineAbandonsEmptyDownload(t *testing.T) {
	t.Parallel()
	client := &captureFake{data: nil}
	p, _ := newTestPipeline(client)

	p.run(context.Background(), selfDestructMessage())

	if len(client.sentMedia()) != 0 {
		t.Fatalf("empty payload must not be uploaded")
	}
}

func TestPipelineSwallowsDownloadError(t *testing.T) {
	t.Parallel()
	client := &captureFake{downloadErr: errors.New("file expired")}
	p, _ := newTestPipeline(client)

	p.run(context.Background(), selfDestructMessage())

	if len(client.sentMedia()) != 0 {
		t.Fatalf("failed download must not reach upload")
	}
}

func TestPipelineSubmitIgnoresOrdinaryMessages(t *testing.T) {
	t.Parallel()
	client := &captureFake{data: jpegHead}
	p, _ := newTestPipeline(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(context.Background())

	p.Submit(nil)
	p.Submit(&transport.Message{ID: 1, Text: "hello"})
	msg := selfDestructMessage()
	msg.SelfDestruct = false
	p.Submit(msg)
	p.Stop(context.Background())

	if len(client.sentMedia()) != 0 {
		t.Fatalf("non-self-destruct messages must never spawn captures")
	}
}
