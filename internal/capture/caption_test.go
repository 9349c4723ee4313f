package capture

import (
	"strings"
	"testing"
	"time"
)

func TestBuildCaption(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Asia/Tehran")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	savedAt := time.Date(2025, 6, 1, 6, 30, 0, 0, time.UTC)

	got := buildCaption(provenance{
		Text:         "limited offer",
		SenderName:   "Jo Doe",
		SenderHandle: "@jodoe",
		SenderID:     12345,
		ChatTitle:    "Deals",
		SavedAt:      savedAt,
	}, loc)

	for _, want := range []string{
		"limited offer",
		"🪪 Full Name: Jo Doe",
		"👤 Username: @jodoe",
		"🆔 User ID: 12345",
		"💬 Chat: Deals",
		"📅 Saved At: " + savedAt.In(loc).Format("2006-01-02 15:04:05"),
	} {
		if !strings.Contains(got, want) {
			t.Errorf("caption missing %q:\n%s", want, got)
		}
	}
}

func TestBuildCaptionPlaceholders(t *testing.T) {
	t.Parallel()
	got := buildCaption(provenance{SavedAt: time.Now()}, time.UTC)

	for _, want := range []string{
		defaultCaptionText,
		"🪪 Full Name: Deleted Account",
		"👤 Username: —",
		"💬 Chat: Private Chat",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("caption missing placeholder %q:\n%s", want, got)
		}
	}
}
