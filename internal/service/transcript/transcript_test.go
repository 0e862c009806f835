package transcript_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/zhouzirui/iris-chat/internal/service/transcript"
)

func TestAppendAndHistory(t *testing.T) {
	svc := transcript.NewService(10)
	ctx := context.Background()

	if _, err := svc.Append(ctx, "user123", transcript.RoleUser, "hi"); err != nil {
		t.Fatalf("Append err: %v", err)
	}
	if _, err := svc.Append(ctx, "user123", transcript.RoleAssistant, "hello"); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	history, err := svc.History(ctx, "user123")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(history) != 2 || history[0].Content != "hi" || history[1].Role != transcript.RoleAssistant {
		t.Fatalf("unexpected history: %+v", history)
	}

	other, _ := svc.History(ctx, "someone-else")
	if len(other) != 0 {
		t.Fatalf("histories must be per client, got %+v", other)
	}
}

func TestAppendTrimsOldest(t *testing.T) {
	svc := transcript.NewService(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Append(ctx, "c", transcript.RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("Append err: %v", err)
		}
	}

	history, _ := svc.History(ctx, "c")
	if len(history) != 3 || history[0].Content != "m2" || history[2].Content != "m4" {
		t.Fatalf("unexpected window: %+v", history)
	}
}

func TestClientIDRequired(t *testing.T) {
	svc := transcript.NewService(0)
	if _, err := svc.Append(context.Background(), " ", transcript.RoleUser, "x"); err != transcript.ErrClientRequired {
		t.Fatalf("expected ErrClientRequired, got %v", err)
	}
}

func TestReset(t *testing.T) {
	svc := transcript.NewService(0)
	ctx := context.Background()
	_, _ = svc.Append(ctx, "c", transcript.RoleUser, "x")
	svc.Reset(ctx, "c")

	history, _ := svc.History(ctx, "c")
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %+v", history)
	}
}
