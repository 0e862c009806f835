package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second

// journal records collaborator calls in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakePlayer struct {
	j    *journal
	next int
	fail bool
}

type fakeLoop struct {
	id int
	j  *journal
}

func (l *fakeLoop) Stop()    { l.j.add("stop %d", l.id) }
func (l *fakeLoop) Release() { l.j.add("release %d", l.id) }

func (p *fakePlayer) PlayLoop(sound int) (AudioLoop, error) {
	if p.fail {
		return nil, errors.New("missing resource")
	}
	p.next++
	p.j.add("play %d sound=%d", p.next, sound)
	return &fakeLoop{id: p.next, j: p.j}, nil
}

type fakeContacts map[string]string

func (c fakeContacts) LookupNumber(_ context.Context, name string) (string, error) {
	if n, ok := c[name]; ok {
		return n, nil
	}
	return "", ErrContactNotFound
}

type fakeCalls struct {
	allowed bool
	placed  []string
}

func (c *fakeCalls) CanPlaceCalls() bool { return c.allowed }

func (c *fakeCalls) PlaceCall(_ context.Context, number string) error {
	c.placed = append(c.placed, number)
	return nil
}

type countingContacts struct {
	fakeContacts
	calls int
}

func (c *countingContacts) LookupNumber(ctx context.Context, name string) (string, error) {
	c.calls++
	return c.fakeContacts.LookupNumber(ctx, name)
}

func newTestExecutor(t *testing.T, deps Deps) *Executor {
	t.Helper()
	e := NewExecutor(deps)
	t.Cleanup(e.Close)
	return e
}

func TestExecuteCallWithPhoneNumberSkipsLookup(t *testing.T) {
	contacts := &countingContacts{fakeContacts: fakeContacts{}}
	calls := &fakeCalls{allowed: true}
	e := newTestExecutor(t, Deps{Contacts: contacts, Calls: calls})

	text, err := e.ExecuteCall(context.Background(), "+15551234567")
	require.NoError(t, err)
	require.Equal(t, []string{"+15551234567"}, calls.placed)
	require.Zero(t, contacts.calls)
	require.Contains(t, text, "+15551234567")
}

func TestExecuteCallResolvesContactName(t *testing.T) {
	calls := &fakeCalls{allowed: true}
	e := newTestExecutor(t, Deps{Contacts: fakeContacts{"Mom": "5550100200"}, Calls: calls})

	text, err := e.ExecuteCall(context.Background(), "Mom")
	require.NoError(t, err)
	require.Equal(t, []string{"5550100200"}, calls.placed)
	require.Equal(t, "Calling Mom...", text)
}

func TestExecuteCallUnknownContactAborts(t *testing.T) {
	calls := &fakeCalls{allowed: true}
	e := newTestExecutor(t, Deps{Contacts: fakeContacts{}, Calls: calls})

	_, err := e.ExecuteCall(context.Background(), "Nobody")
	require.ErrorIs(t, err, ErrContactNotFound)
	require.Empty(t, calls.placed)

	// no directory at all behaves the same
	bare := newTestExecutor(t, Deps{Calls: calls})
	_, err = bare.ExecuteCall(context.Background(), "Nobody")
	require.ErrorIs(t, err, ErrContactNotFound)
	require.Empty(t, calls.placed)
}

func TestExecuteCallWithoutPermissionAborts(t *testing.T) {
	calls := &fakeCalls{allowed: false}
	e := newTestExecutor(t, Deps{Calls: calls})

	_, err := e.ExecuteCall(context.Background(), "5551234567")
	require.ErrorIs(t, err, ErrCallNotPermitted)
	require.Empty(t, calls.placed)
}

func TestIsPhoneNumber(t *testing.T) {
	for _, ok := range []string{"5551234", "+15551234567", "123456789012345"} {
		require.True(t, IsPhoneNumber(ok), ok)
	}
	for _, bad := range []string{"", "555123", "1234567890123456", "Mom", "+1 555 123 4567", "555-1234"} {
		require.False(t, IsPhoneNumber(bad), bad)
	}
}

func TestSessionCountsDownOncePerSecondAndDeactivates(t *testing.T) {
	mock := clock.NewMock()
	j := &journal{}
	e := newTestExecutor(t, Deps{Clock: mock, Audio: &fakePlayer{j: j}})

	s := e.StartSession(1, 3)
	require.Equal(t, chat.TimedSession{SoundIndex: 3, TotalSeconds: 60, RemainingSeconds: 60, Active: true}, s)
	require.True(t, e.Session().Active)

	for want := 59; want >= 0; want-- {
		mock.Add(time.Second)
		require.Eventually(t, func() bool {
			return e.Session().RemainingSeconds == want
		}, waitFor, time.Millisecond, "remaining %d", want)
	}

	require.Eventually(t, func() bool { return !e.Session().Active }, waitFor, time.Millisecond)
	require.Equal(t, 0, e.Session().RemainingSeconds)
	require.Equal(t, []string{"play 1 sound=3", "stop 1", "release 1"}, j.list())
}

func TestStartingNewSessionTerminatesPreviousFirst(t *testing.T) {
	mock := clock.NewMock()
	j := &journal{}
	e := newTestExecutor(t, Deps{Clock: mock, Audio: &fakePlayer{j: j}})

	e.StartSession(5, 2)
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return e.Session().RemainingSeconds == 299 }, waitFor, time.Millisecond)

	s := e.StartSession(2, 4)
	require.Equal(t, 120, s.RemainingSeconds)
	require.Equal(t, []string{"play 1 sound=2", "stop 1", "release 1", "play 2 sound=4"}, j.list())

	// a single countdown remains: one tick is exactly one decrement
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return e.Session().RemainingSeconds == 119 }, waitFor, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 119, e.Session().RemainingSeconds)

	e.StopSession()
	require.Equal(t, []string{"play 1 sound=2", "stop 1", "release 1", "play 2 sound=4", "stop 2", "release 2"}, j.list())
}

func TestStartSessionClampsSound(t *testing.T) {
	e := newTestExecutor(t, Deps{Clock: clock.NewMock()})
	require.Equal(t, 10, e.StartSession(5, 42).SoundIndex)
	require.Equal(t, 1, e.StartSession(5, 0).SoundIndex)
}

func TestStopSessionIsIdempotent(t *testing.T) {
	mock := clock.NewMock()
	var (
		mu      sync.Mutex
		updates []chat.TimedSession
	)
	e := newTestExecutor(t, Deps{Clock: mock, OnSessionChange: func(s chat.TimedSession) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, s)
	}})

	e.StopSession()
	e.StartSession(5, 1)
	e.StopSession()
	e.StopSession()

	require.False(t, e.Session().Active)
	require.Zero(t, e.Session().RemainingSeconds)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 2)
	require.True(t, updates[0].Active)
	require.False(t, updates[1].Active)
}

func TestZeroDurationSessionEndsImmediately(t *testing.T) {
	j := &journal{}
	e := newTestExecutor(t, Deps{Clock: clock.NewMock(), Audio: &fakePlayer{j: j}})

	e.StartSession(0, 1)
	require.Eventually(t, func() bool { return !e.Session().Active }, waitFor, time.Millisecond)
	require.Equal(t, []string{"play 1 sound=1", "stop 1", "release 1"}, j.list())
}

func TestSessionRunsWithoutAudio(t *testing.T) {
	mock := clock.NewMock()
	e := newTestExecutor(t, Deps{Clock: mock, Audio: &fakePlayer{j: &journal{}, fail: true}})

	e.StartSession(1, 1)
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return e.Session().RemainingSeconds == 59 }, waitFor, time.Millisecond)
}
