// Package action executes the side effects requested by assistant action
// frames: placing calls and running timed meditation sessions.
package action

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
)

var (
	ErrContactNotFound  = errors.New("contact not found")
	ErrCallNotPermitted = errors.New("call permission not granted")
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// IsPhoneNumber reports whether target can be dialed without a contact lookup.
func IsPhoneNumber(target string) bool {
	return phonePattern.MatchString(target)
}

// Deps wires the executor to its collaborators. Any of Contacts, Calls and
// Audio may be nil.
type Deps struct {
	Contacts ContactDirectory
	Calls    CallPlacer
	Audio    AudioPlayer
	Clock    clock.Clock
	Logger   *zap.Logger
	// OnSessionChange receives every TimedSession update. It is called from
	// the countdown goroutine and must not block.
	OnSessionChange func(chat.TimedSession)
}

type countdown struct {
	cancel context.CancelFunc
	done   chan struct{}
	loop   AudioLoop
}

// Executor owns the TimedSession. At most one session runs at a time.
type Executor struct {
	contacts ContactDirectory
	calls    CallPlacer
	audio    AudioPlayer
	clock    clock.Clock
	logger   *zap.Logger
	onChange func(chat.TimedSession)

	// opMu serializes StartSession/StopSession so a new session is never
	// initialized before the previous one is torn down.
	opMu sync.Mutex

	mu      sync.Mutex
	session chat.TimedSession
	running *countdown
	wg      sync.WaitGroup
}

// NewExecutor creates an executor with no active session.
func NewExecutor(deps Deps) *Executor {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Executor{
		contacts: deps.Contacts,
		calls:    deps.Calls,
		audio:    deps.Audio,
		clock:    deps.Clock,
		logger:   deps.Logger.Named("action"),
		onChange: deps.OnSessionChange,
	}
}

// ExecuteCall places a call to target, resolving it through the contact
// directory unless it already looks like a phone number. On success it returns
// the confirmation text to record in the conversation.
func (e *Executor) ExecuteCall(ctx context.Context, target string) (string, error) {
	target = strings.TrimSpace(target)
	number := target

	if !IsPhoneNumber(target) {
		if e.contacts == nil || target == "" {
			e.logger.Warn("cannot resolve call target", zap.String("target", target))
			return "", fmt.Errorf("resolving %q: %w", target, ErrContactNotFound)
		}
		resolved, err := e.contacts.LookupNumber(ctx, target)
		if err != nil {
			e.logger.Warn("contact lookup failed", zap.String("target", target), zap.Error(err))
			return "", fmt.Errorf("resolving %q: %w", target, err)
		}
		number = resolved
	}

	if e.calls == nil || !e.calls.CanPlaceCalls() {
		e.logger.Warn("call permission not granted", zap.String("target", target))
		return "", ErrCallNotPermitted
	}
	if err := e.calls.PlaceCall(ctx, number); err != nil {
		e.logger.Warn("placing call failed", zap.String("number", number), zap.Error(err))
		return "", fmt.Errorf("placing call: %w", err)
	}

	e.logger.Info("call placed", zap.String("target", target), zap.String("number", number))
	return fmt.Sprintf("Calling %s...", target), nil
}

// StartSession stops any running session, then starts a new one of
// durationMinutes with the given sound (clamped to the bundled range).
func (e *Executor) StartSession(durationMinutes, soundIndex int) chat.TimedSession {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.stop()

	total := durationMinutes * 60
	if total < 0 {
		total = 0
	}
	sound := chat.ClampSoundIndex(soundIndex)

	ctx, cancel := context.WithCancel(context.Background())
	run := &countdown{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.session = chat.TimedSession{
		SoundIndex:       sound,
		TotalSeconds:     total,
		RemainingSeconds: total,
		Active:           true,
	}
	snapshot := e.session
	e.running = run
	ticker := e.clock.Ticker(time.Second)
	e.mu.Unlock()

	e.notify(snapshot)

	if e.audio != nil {
		loop, err := e.audio.PlayLoop(sound)
		if err != nil {
			e.logger.Warn("meditation sound unavailable", zap.Int("sound", sound), zap.Error(err))
		} else {
			run.loop = loop
		}
	}

	e.logger.Info("session started", zap.Int("seconds", total), zap.Int("sound", sound))

	e.wg.Add(1)
	go e.countDown(ctx, run, ticker)
	return snapshot
}

// StopSession ends the running session. Safe to call when none is active.
func (e *Executor) StopSession() {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.stop()
}

// Session returns the current session state.
func (e *Executor) Session() chat.TimedSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Close stops the session and waits for the countdown to exit.
func (e *Executor) Close() {
	e.StopSession()
	e.wg.Wait()
}

// stop tears the running session down completely: countdown exited, audio
// stopped and released. Callers hold opMu.
func (e *Executor) stop() {
	e.mu.Lock()
	run := e.running
	e.running = nil
	wasActive := e.session.Active
	elapsed := e.session.Elapsed()
	e.session.Active = false
	e.session.RemainingSeconds = 0
	snapshot := e.session
	var loop AudioLoop
	if run != nil {
		loop = run.loop
		run.loop = nil
	}
	e.mu.Unlock()

	if run != nil {
		run.cancel()
		<-run.done
	}
	releaseLoop(loop)

	if wasActive {
		e.logger.Info("session stopped", zap.Int("elapsed_seconds", elapsed))
		e.notify(snapshot)
	}
}

func (e *Executor) countDown(ctx context.Context, run *countdown, ticker *clock.Ticker) {
	defer e.wg.Done()
	defer close(run.done)
	defer ticker.Stop()

	for {
		e.mu.Lock()
		if e.running != run {
			e.mu.Unlock()
			return
		}
		if e.session.RemainingSeconds <= 0 {
			e.running = nil
			e.session.Active = false
			e.session.RemainingSeconds = 0
			snapshot := e.session
			loop := run.loop
			run.loop = nil
			e.mu.Unlock()

			releaseLoop(loop)
			e.logger.Info("session completed")
			e.notify(snapshot)
			return
		}
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		if e.running != run {
			e.mu.Unlock()
			return
		}
		e.session.RemainingSeconds--
		snapshot := e.session
		e.mu.Unlock()

		e.notify(snapshot)
	}
}

func (e *Executor) notify(s chat.TimedSession) {
	if e.onChange != nil {
		e.onChange(s)
	}
}

func releaseLoop(loop AudioLoop) {
	if loop == nil {
		return
	}
	loop.Stop()
	loop.Release()
}
