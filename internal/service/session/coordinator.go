// Package session composes the connection, router, action executor and
// conversation log into the single surface a chat UI observes.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
	"github.com/zhouzirui/iris-chat/internal/service/action"
	"github.com/zhouzirui/iris-chat/internal/service/chatlog"
	"github.com/zhouzirui/iris-chat/internal/service/connection"
	"github.com/zhouzirui/iris-chat/internal/service/router"
	"github.com/zhouzirui/iris-chat/internal/service/upload"
)

var (
	// ErrSendRejected wraps the reason a user message was not sent.
	ErrSendRejected = errors.New("message not sent")
	ErrClosed       = errors.New("session closed")
	ErrNotStarted   = errors.New("session not started")
)

// DefaultSlowResponseAfter is how long a reply may be outstanding before the
// UI is told it is slow.
const DefaultSlowResponseAfter = 20 * time.Second

// Config configures a Coordinator.
type Config struct {
	ClientID          string
	SlowResponseAfter time.Duration
	Connection        connection.Options
}

// Uploader hands attachment files to the side channel.
type Uploader interface {
	Upload(ctx context.Context, f upload.File) (upload.Result, error)
}

// Deps are the collaborators owned by the application root.
type Deps struct {
	Log      chatlog.Log
	Uploader Uploader
	Contacts action.ContactDirectory
	Calls    action.CallPlacer
	Audio    action.AudioPlayer
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Snapshot is everything the UI renders.
type Snapshot struct {
	Connection    chat.ConnectionState
	Messages      []chat.Message
	AwaitingReply bool
	SlowResponse  bool
	Session       chat.TimedSession
}

func (s Snapshot) clone() Snapshot {
	s.Messages = slices.Clone(s.Messages)
	return s
}

type command struct {
	run   func() error
	reply chan error
}

// Coordinator owns one chat session. All log writes and flag changes happen
// on its run loop.
type Coordinator struct {
	cfg      Config
	log      chatlog.Log
	uploader Uploader
	conn     *connection.Manager
	exec     *action.Executor
	router   *router.Router
	clock    clock.Clock
	logger   *zap.Logger

	commands       chan command
	slowFired      chan uint64
	sessionChanged chan struct{}
	updates        chan Snapshot

	// owned by the run loop
	state     Snapshot
	slowGen   uint64
	slowTimer *clock.Timer

	mu        sync.Mutex
	current   Snapshot
	started   bool
	closed    bool
	sub       *chatlog.Subscription
	stopAfter func() bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator wires a coordinator. Nothing runs until Start.
func NewCoordinator(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Log == nil {
		return nil, errors.New("conversation log is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, connection.ErrClientIDRequired
	}
	if cfg.SlowResponseAfter <= 0 {
		cfg.SlowResponseAfter = DefaultSlowResponseAfter
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Connection.Clock == nil {
		cfg.Connection.Clock = deps.Clock
	}
	if cfg.Connection.Logger == nil {
		cfg.Connection.Logger = deps.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:            cfg,
		log:            deps.Log,
		uploader:       deps.Uploader,
		clock:          deps.Clock,
		logger:         deps.Logger.Named("session"),
		commands:       make(chan command),
		slowFired:      make(chan uint64),
		sessionChanged: make(chan struct{}, 1),
		updates:        make(chan Snapshot, 1),
		state:          Snapshot{Connection: chat.Disconnected},
		ctx:            ctx,
		cancel:         cancel,
	}
	c.current = c.state

	c.conn = connection.NewManager(cfg.Connection)
	c.exec = action.NewExecutor(action.Deps{
		Contacts: deps.Contacts,
		Calls:    deps.Calls,
		Audio:    deps.Audio,
		Clock:    deps.Clock,
		Logger:   deps.Logger,
		OnSessionChange: func(chat.TimedSession) {
			select {
			case c.sessionChanged <- struct{}{}:
			default:
			}
		},
	})
	c.router = router.New(deps.Log, c.exec, deps.Clock, deps.Logger)
	return c, nil
}

// Start subscribes to the log, opens the channel and starts the run loop.
// The coordinator stops when ctx is cancelled or Close is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	sub, err := c.log.Observe(c.ctx)
	if err != nil {
		return fmt.Errorf("observing conversation log: %w", err)
	}

	c.mu.Lock()
	c.sub = sub
	c.stopAfter = context.AfterFunc(ctx, c.cancel)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(sub)

	if err := c.conn.Connect(c.cfg.ClientID); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	c.logger.Info("session started", zap.String("client", c.cfg.ClientID))
	return nil
}

// SendUserMessage sends text to the assistant and records it. Blank text is
// ignored. When the channel is not Connected the message is rejected with an
// error wrapping ErrSendRejected and connection.ErrNotConnected, nothing is
// recorded, and one reconnect attempt is requested.
func (c *Coordinator) SendUserMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.do(ctx, func() error {
		return c.send(ctx, text)
	})
}

// AttachFile records an attachment message for f and uploads it in the
// background. kind overrides the recorded MIME type when set.
func (c *Coordinator) AttachFile(ctx context.Context, f upload.File, kind string) error {
	return c.do(ctx, func() error {
		return c.attach(ctx, f, kind)
	})
}

// DeleteMessage removes one message from the log.
func (c *Coordinator) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, func() error {
		return c.log.DeleteByID(ctx, id)
	})
}

// ClearHistory removes every message from the log.
func (c *Coordinator) ClearHistory(ctx context.Context) error {
	return c.do(ctx, func() error {
		return c.log.DeleteAll(ctx)
	})
}

// StopSession ends the running timed session, if any.
func (c *Coordinator) StopSession() {
	c.exec.StopSession()
}

// Snapshot returns the latest published state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.clone()
}

// Updates delivers published snapshots. Only the newest pending snapshot is
// kept. The channel is closed by Close.
func (c *Coordinator) Updates() <-chan Snapshot {
	return c.updates
}

// Close cancels every background activity (reconnect, keepalive, countdown,
// slow-response deadline, uploads) and waits for them to finish.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sub := c.sub
	stopAfter := c.stopAfter
	c.mu.Unlock()

	c.cancel()
	if stopAfter != nil {
		stopAfter()
	}
	c.wg.Wait()

	c.exec.Close()
	err := c.conn.Close()
	if sub != nil {
		sub.Close()
	}
	close(c.updates)
	c.logger.Info("session closed")
	return err
}

func (c *Coordinator) do(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.started:
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.mu.Unlock()

	cmd := command{run: fn, reply: make(chan error, 1)}
	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Coordinator) run(sub *chatlog.Subscription) {
	defer c.wg.Done()
	defer c.stopSlowTimer()

	events := c.conn.Events()
	snapshots := sub.C()

	for {
		select {
		case <-c.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleEvent(ev)

		case messages, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			c.state.Messages = messages
			c.publish()

		case cmd := <-c.commands:
			cmd.reply <- cmd.run()

		case gen := <-c.slowFired:
			if gen == c.slowGen && c.state.AwaitingReply && !c.state.SlowResponse {
				c.state.SlowResponse = true
				c.publish()
			}

		case <-c.sessionChanged:
			c.state.Session = c.exec.Session()
			c.publish()
		}
	}
}

func (c *Coordinator) handleEvent(ev connection.Event) {
	switch ev.Kind {
	case connection.EventStateChanged:
		c.state.Connection = ev.State
	case connection.EventMessage:
		outcome := c.router.Route(c.ctx, ev.Payload)
		if outcome.Replied() {
			c.clearAwaiting()
		}
	}
	c.publish()
}

func (c *Coordinator) send(ctx context.Context, text string) error {
	if state := c.conn.State(); state != chat.Connected {
		reconnecting := c.conn.Reconnect()
		c.logger.Info("send rejected",
			zap.Stringer("state", state),
			zap.Bool("reconnect_started", reconnecting))
		return fmt.Errorf("%w: %w", ErrSendRejected, connection.ErrNotConnected)
	}

	frame, err := EncodeOutbound(text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendRejected, err)
	}
	if err := c.conn.Send(frame); err != nil {
		if errors.Is(err, connection.ErrNotConnected) {
			c.conn.Reconnect()
		}
		return fmt.Errorf("%w: %w", ErrSendRejected, err)
	}

	msg := chat.NewUserMessage(text, c.clock.Now())
	if err := c.log.InsertOrReplace(ctx, msg); err != nil {
		// the frame is already on the wire
		c.logger.Error("failed to record sent message", zap.String("id", msg.ID), zap.Error(err))
	}

	// the deadline runs from when AwaitingReply turned on
	if !c.state.AwaitingReply {
		c.state.AwaitingReply = true
		c.state.SlowResponse = false
		c.armSlowTimer()
	}
	c.publish()
	return nil
}

func (c *Coordinator) attach(ctx context.Context, f upload.File, kind string) error {
	mimeType := strings.TrimSpace(kind)
	if mimeType == "" {
		mimeType = f.MimeType
	}
	att := chat.Attachment{URL: f.URI, MimeType: mimeType, DisplayName: f.Name}
	if !att.IsEmpty() {
		if err := c.log.InsertOrReplace(ctx, chat.NewAttachmentMessage(att, c.clock.Now())); err != nil {
			return fmt.Errorf("recording attachment: %w", err)
		}
	}

	if c.uploader == nil {
		c.logger.Warn("no uploader configured, attachment kept locally", zap.String("file", f.Name))
		return nil
	}

	c.wg.Add(1)
	go c.upload(f)
	return nil
}

func (c *Coordinator) upload(f upload.File) {
	defer c.wg.Done()

	res, err := c.uploader.Upload(c.ctx, f)
	if err == nil {
		c.logger.Info("attachment uploaded", zap.String("file", f.Name), zap.String("url", res.URL))
		return
	}
	if c.ctx.Err() != nil {
		return
	}

	c.logger.Warn("attachment upload failed", zap.String("file", f.Name), zap.Error(err))
	text := upload.FailureText(err)
	cmd := command{
		run: func() error {
			return c.log.InsertOrReplace(c.ctx, chat.NewAssistantMessage(text, c.clock.Now()))
		},
		reply: make(chan error, 1),
	}
	select {
	case c.commands <- cmd:
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) clearAwaiting() {
	c.state.AwaitingReply = false
	c.state.SlowResponse = false
	c.stopSlowTimer()
}

func (c *Coordinator) armSlowTimer() {
	c.stopSlowTimer()
	gen := c.slowGen
	c.slowTimer = c.clock.AfterFunc(c.cfg.SlowResponseAfter, func() {
		select {
		case c.slowFired <- gen:
		case <-c.ctx.Done():
		}
	})
}

func (c *Coordinator) stopSlowTimer() {
	if c.slowTimer != nil {
		c.slowTimer.Stop()
		c.slowTimer = nil
	}
	c.slowGen++
}

func (c *Coordinator) publish() {
	snap := c.state.clone()

	c.mu.Lock()
	c.current = snap
	c.mu.Unlock()

	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- snap.clone():
	default:
	}
}
