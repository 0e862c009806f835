package chatlog

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
)

func openTestLog(t *testing.T) *SQLiteLog {
	t.Helper()
	l, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func msgAt(id string, ts int64) chat.Message {
	return chat.Message{ID: id, Text: "text " + id, TimestampMillis: ts}
}

func ids(messages []chat.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func nextSnapshot(t *testing.T, sub *Subscription) []chat.Message {
	t.Helper()
	select {
	case snap, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestListSortedByTimestampRegardlessOfInsertOrder(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 5; round++ {
		l := openTestLog(t)

		const n = 20
		perm := rng.Perm(n)
		for _, i := range perm {
			require.NoError(t, l.InsertOrReplace(ctx, msgAt(fmt.Sprintf("m%02d", i), int64(1000+i*7))))
		}

		got, err := l.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, n)
		for i := 1; i < len(got); i++ {
			require.Less(t, got[i-1].TimestampMillis, got[i].TimestampMillis)
		}
	}
}

func TestEqualTimestampsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	require.NoError(t, l.InsertOrReplace(ctx, msgAt("b", 10)))
	require.NoError(t, l.InsertOrReplace(ctx, msgAt("a", 10)))
	require.NoError(t, l.InsertOrReplace(ctx, msgAt("c", 5)))

	got, err := l.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b", "a"}, ids(got))
}

func TestDeleteByIDRemovesOnlyThatMessage(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, l.InsertOrReplace(ctx, msgAt(id, int64(100-i*10))))
	}
	before, err := l.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"e", "d", "c", "b", "a"}, ids(before))

	require.NoError(t, l.DeleteByID(ctx, "c"))

	after, err := l.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"e", "d", "b", "a"}, ids(after))

	// deleting an unknown id is a no-op
	require.NoError(t, l.DeleteByID(ctx, "missing"))
	again, err := l.List(ctx)
	require.NoError(t, err)
	require.Equal(t, ids(after), ids(again))
}

func TestInsertOrReplaceKeepsIdentityUnique(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	require.NoError(t, l.InsertOrReplace(ctx, chat.Message{ID: "x", Text: "first", TimestampMillis: 1}))
	require.NoError(t, l.InsertOrReplace(ctx, chat.Message{ID: "x", Text: "second", TimestampMillis: 2}))

	got, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "second", got[0].Text)
}

func TestInsertRejectsEmptyID(t *testing.T) {
	l := openTestLog(t)
	err := l.InsertOrReplace(context.Background(), chat.Message{Text: "orphan"})
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestAttachmentRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	want := chat.Message{
		ID:              "att",
		IsFromUser:      true,
		TimestampMillis: 77,
		Attachment: &chat.Attachment{
			URL:         "content://media/1",
			MimeType:    "image/png",
			DisplayName: "scan.png",
		},
	}
	require.NoError(t, l.InsertOrReplace(ctx, want))
	require.NoError(t, l.InsertOrReplace(ctx, msgAt("plain", 78)))

	got, err := l.List(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Fatalf("attachment message mismatch (-want +got):\n%s", diff)
	}
	require.Nil(t, got[1].Attachment)
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	require.NoError(t, l.InsertOrReplace(ctx, msgAt("a", 1)))
	require.NoError(t, l.InsertOrReplace(ctx, msgAt("b", 2)))
	require.NoError(t, l.DeleteAll(ctx))

	got, err := l.List(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestObserveDeliversInitialAndOrderedSnapshots(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)
	require.NoError(t, l.InsertOrReplace(ctx, msgAt("seed", 50)))

	sub, err := l.Observe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.Equal(t, []string{"seed"}, ids(nextSnapshot(t, sub)))

	require.NoError(t, l.InsertOrReplace(ctx, msgAt("early", 10)))
	require.Equal(t, []string{"early", "seed"}, ids(nextSnapshot(t, sub)))

	require.NoError(t, l.DeleteByID(ctx, "seed"))
	require.Equal(t, []string{"early"}, ids(nextSnapshot(t, sub)))
}

func TestObserveConflatesForSlowReaders(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	sub, err := l.Observe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.InsertOrReplace(ctx, msgAt(fmt.Sprintf("m%d", i), int64(i))))
	}

	// only the newest snapshot is pending
	snap := nextSnapshot(t, sub)
	require.Len(t, snap, 5)
	select {
	case extra := <-sub.C():
		t.Fatalf("unexpected extra snapshot: %v", ids(extra))
	default:
	}
}

func TestSnapshotsAreIndependentCopies(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)
	require.NoError(t, l.InsertOrReplace(ctx, msgAt("a", 1)))

	first, err := l.Observe(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := l.Observe(ctx)
	require.NoError(t, err)
	defer second.Close()

	a := nextSnapshot(t, first)
	b := nextSnapshot(t, second)
	a[0].Text = "mutated"
	require.Equal(t, "text a", b[0].Text)
}

func TestSubscriptionEndsOnCancelAndClose(t *testing.T) {
	l := openTestLog(t)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := l.Observe(ctx)
	require.NoError(t, err)
	nextSnapshot(t, sub)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	other, err := l.Observe(context.Background())
	require.NoError(t, err)
	nextSnapshot(t, other)

	require.NoError(t, l.Close())
	_, ok := <-other.C()
	require.False(t, ok)

	_, err = l.Observe(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, l.InsertOrReplace(context.Background(), msgAt("late", 1)), ErrClosed)
}
