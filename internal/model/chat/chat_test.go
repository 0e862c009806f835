package chat

import (
	"testing"
	"time"
)

func TestClampSoundIndex(t *testing.T) {
	cases := map[int]int{-3: 1, 0: 1, 1: 1, 7: 7, 10: 10, 11: 10, 99: 10}
	for in, want := range cases {
		if got := ClampSoundIndex(in); got != want {
			t.Fatalf("ClampSoundIndex(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestAttachmentIsEmpty(t *testing.T) {
	if !(Attachment{}).IsEmpty() {
		t.Fatal("zero attachment should be empty")
	}
	if !(Attachment{URL: "file:///a.png"}).IsEmpty() {
		t.Fatal("attachment without mime type should be empty")
	}
	if (Attachment{URL: "file:///a.png", MimeType: "image/png"}).IsEmpty() {
		t.Fatal("attachment with url and mime type should not be empty")
	}
}

func TestNewMessagesCarryAuthorAndTimestamp(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)

	user := NewUserMessage("hi", now)
	if !user.IsFromUser || user.TimestampMillis != now.UnixMilli() || user.ID == "" {
		t.Fatalf("unexpected user message: %+v", user)
	}

	reply := NewAssistantMessage("hello", now)
	if reply.IsFromUser {
		t.Fatal("assistant message marked as user")
	}
	if reply.ID == user.ID {
		t.Fatal("message ids must be unique")
	}

	att := NewAttachmentMessage(Attachment{URL: "u", MimeType: "m", DisplayName: "n"}, now)
	if att.Text != "" || !att.IsFromUser || att.Attachment == nil || att.Attachment.DisplayName != "n" {
		t.Fatalf("unexpected attachment message: %+v", att)
	}
}

func TestActionName(t *testing.T) {
	if ActionName(CallAction{Target: "x"}) != "call" {
		t.Fatal("call action name")
	}
	if ActionName(MeditateAction{}) != "meditate" {
		t.Fatal("meditate action name")
	}
	if ActionName(nil) != "" {
		t.Fatal("nil action name")
	}
}

func TestTimedSessionElapsed(t *testing.T) {
	cases := []struct {
		s    TimedSession
		want int
	}{
		{TimedSession{TotalSeconds: 300, RemainingSeconds: 300}, 0},
		{TimedSession{TotalSeconds: 300, RemainingSeconds: 175}, 125},
		{TimedSession{TotalSeconds: 300, RemainingSeconds: 0}, 300},
		{TimedSession{}, 0},
	}
	for _, tc := range cases {
		if got := tc.s.Elapsed(); got != tc.want {
			t.Fatalf("Elapsed(%+v) = %d, want %d", tc.s, got, tc.want)
		}
	}
}
