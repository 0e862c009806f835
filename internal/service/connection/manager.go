package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrClosed           = errors.New("connection manager closed")
	ErrClientIDRequired = errors.New("client id is required")

	errKeepaliveTimeout = errors.New("keepalive: no pong received")
)

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Options 连接管理器配置选项
type Options struct {
	BaseURL           string        // 聊天通道地址，clientID 作为最后一段路径追加
	ReconnectDelay    time.Duration // 失败后固定的重连间隔
	KeepaliveInterval time.Duration // Ping间隔
	HandshakeTimeout  time.Duration // 握手超时时间
	WriteTimeout      time.Duration // 写入超时时间
	Dialer            Dialer
	Clock             clock.Clock
	Logger            *zap.Logger
}

// DefaultOptions 默认连接选项
func DefaultOptions() Options {
	return Options{
		BaseURL:           "ws://127.0.0.1:8000/ws/chat",
		ReconnectDelay:    5 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.BaseURL == "" {
		o.BaseURL = def.BaseURL
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = def.ReconnectDelay
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = def.KeepaliveInterval
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = def.HandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: o.HandshakeTimeout,
		}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// link is one established websocket connection.
type link struct {
	conn         *websocket.Conn
	cancel       context.CancelFunc
	awaitingPong atomic.Bool
}

// Manager owns the single assistant channel: the lifecycle state machine, the
// fixed-delay reconnect policy and the keepalive probe.
//
//	Disconnected -> Connecting -> Connected
//	Connecting|Connected --failure/close--> Failed --delay--> Connecting
//
// Every transition and every inbound frame is pushed onto one ordered event
// stream (Events).
type Manager struct {
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	state      chat.ConnectionState
	clientID   string
	link       *link
	dialCancel context.CancelFunc
	attempting bool
	attempts   uint64
	retry      *clock.Timer
	retrySeq   uint64
	stopped    bool
	closed     bool

	writeMu sync.Mutex
	queue   *eventQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager in the Disconnected state.
func NewManager(opts Options) *Manager {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:   opts,
		logger: opts.Logger.Named("connection"),
		state:  chat.Disconnected,
		queue:  newEventQueue(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Events is the ordered stream of state changes and inbound frames. It is
// closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.queue.out
}

// State returns the current connection state.
func (m *Manager) State() chat.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns how many connection attempts have been started.
func (m *Manager) Attempts() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect establishes (or re-establishes) the channel for clientID and
// re-enables automatic reconnection.
func (m *Manager) Connect(clientID string) error {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return ErrClientIDRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.clientID != clientID && m.link != nil {
		m.dropLinkLocked()
		m.setStateLocked(chat.Disconnected)
	}
	m.clientID = clientID
	m.stopped = false
	m.cancelRetryLocked()
	m.startAttemptLocked()
	return nil
}

// Reconnect starts one connection attempt now unless one is already in flight
// or the channel is up. A pending delayed retry is replaced by the immediate
// attempt. It reports whether a new attempt was started.
func (m *Manager) Reconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.clientID == "" {
		return false
	}
	if m.attempting || m.state == chat.Connected {
		return false
	}
	m.stopped = false
	m.cancelRetryLocked()
	return m.startAttemptLocked()
}

// Send writes one text frame. It fails with ErrNotConnected unless the state
// is Connected.
func (m *Manager) Send(frame []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != chat.Connected || m.link == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	l := m.link
	m.mu.Unlock()

	m.writeMu.Lock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout))
	err := l.conn.WriteMessage(websocket.TextMessage, frame)
	m.writeMu.Unlock()

	if err != nil {
		m.linkFailed(l, err)
		return fmt.Errorf("sending frame: %w", err)
	}
	return nil
}

// Disconnect closes the channel and suppresses automatic reconnection until
// the next Connect or Reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopped = true
	m.cancelRetryLocked()
	if m.dialCancel != nil {
		m.dialCancel()
	}
	// detached here, closed below without holding mu
	l := m.link
	m.link = nil
	if m.state != chat.Disconnected {
		m.setStateLocked(chat.Disconnected)
	}
	m.mu.Unlock()

	if l == nil {
		return
	}
	l.cancel()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "User initiated disconnect")
	m.writeMu.Lock()
	_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(m.opts.WriteTimeout))
	m.writeMu.Unlock()
	l.conn.Close()
}

// Close disconnects, cancels every background activity, waits for them to
// exit and closes the event stream. The manager cannot be reused.
func (m *Manager) Close() error {
	m.Disconnect()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.queue.close()
	m.logger.Debug("connection manager closed")
	return nil
}

func (m *Manager) targetURL() string {
	return strings.TrimRight(m.opts.BaseURL, "/") + "/" + url.PathEscape(m.clientID)
}

func (m *Manager) setStateLocked(s chat.ConnectionState) {
	if m.state == s {
		return
	}
	m.state = s
	m.queue.push(Event{Kind: EventStateChanged, State: s})
	m.logger.Debug("state changed", zap.Stringer("state", s))
}

func (m *Manager) startAttemptLocked() bool {
	if m.closed || m.stopped || m.attempting || m.state == chat.Connected {
		return false
	}

	m.attempting = true
	m.attempts++
	ctx, cancel := context.WithTimeout(m.ctx, m.opts.HandshakeTimeout)
	m.dialCancel = cancel
	target := m.targetURL()
	m.setStateLocked(chat.Connecting)

	m.logger.Info("connecting", zap.String("url", target), zap.Uint64("attempt", m.attempts))

	m.wg.Add(1)
	go m.dial(ctx, cancel, target)
	return true
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, target string) {
	defer m.wg.Done()
	defer cancel()

	conn, _, err := m.opts.Dialer.DialContext(ctx, target, nil)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempting = false
	m.dialCancel = nil

	if m.closed || m.stopped {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.logger.Warn("connection failed", zap.String("url", target), zap.Error(err))
		m.failLocked()
		return
	}

	m.attachLocked(conn)
}

func (m *Manager) attachLocked(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(m.ctx)
	l := &link{conn: conn, cancel: cancel}

	conn.SetPongHandler(func(string) error {
		l.awaitingPong.Store(false)
		return nil
	})

	m.link = l
	m.setStateLocked(chat.Connected)
	m.logger.Info("connected to assistant")

	// created here so the first probe is scheduled relative to the connect time
	ticker := m.opts.Clock.Ticker(m.opts.KeepaliveInterval)

	m.wg.Add(2)
	go m.readLoop(l)
	go m.keepalive(ctx, l, ticker)
}

func (m *Manager) readLoop(l *link) {
	defer m.wg.Done()

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			m.linkFailed(l, err)
			return
		}

		m.mu.Lock()
		if m.link != l {
			m.mu.Unlock()
			return
		}
		m.queue.push(Event{Kind: EventMessage, Payload: string(data)})
		m.mu.Unlock()
	}
}

// keepalive sends a ping every interval. A ping still unanswered when the
// next tick arrives fails the link.
func (m *Manager) keepalive(ctx context.Context, l *link, ticker *clock.Ticker) {
	defer m.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l.awaitingPong.Load() {
				m.linkFailed(l, errKeepaliveTimeout)
				return
			}
			l.awaitingPong.Store(true)
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.opts.WriteTimeout)); err != nil {
				m.linkFailed(l, err)
				return
			}
		}
	}
}

func (m *Manager) linkFailed(l *link, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link != l {
		return
	}
	m.dropLinkLocked()
	if m.closed || m.stopped {
		return
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.logger.Info("server closed connection", zap.Error(err))
	} else {
		m.logger.Warn("connection lost", zap.Error(err))
	}
	m.failLocked()
}

func (m *Manager) dropLinkLocked() {
	if m.link == nil {
		return
	}
	m.link.cancel()
	m.link.conn.Close()
	m.link = nil
}

// failLocked moves to Failed and schedules exactly one retry.
func (m *Manager) failLocked() {
	m.setStateLocked(chat.Failed)
	if m.retry != nil {
		return
	}
	m.retrySeq++
	seq := m.retrySeq
	m.retry = m.opts.Clock.AfterFunc(m.opts.ReconnectDelay, func() {
		m.retryFired(seq)
	})
	m.logger.Debug("reconnect scheduled", zap.Duration("delay", m.opts.ReconnectDelay))
}

func (m *Manager) retryFired(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.retrySeq || m.retry == nil {
		return
	}
	m.retry = nil
	if m.closed || m.stopped {
		return
	}
	m.logger.Info("attempting reconnect")
	m.startAttemptLocked()
}

func (m *Manager) cancelRetryLocked() {
	if m.retry == nil {
		return
	}
	m.retry.Stop()
	m.retry = nil
	m.retrySeq++
}
