package platform

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/internal/service/action"
)

// CallLogger stands in for a telephony service. Calls are only recorded.
type CallLogger struct {
	enabled bool
	logger  *zap.Logger

	mu     sync.Mutex
	placed []string
}

var _ action.CallPlacer = (*CallLogger)(nil)

// NewCallLogger creates a call placer. enabled plays the role of the call
// permission.
func NewCallLogger(enabled bool, logger *zap.Logger) *CallLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallLogger{enabled: enabled, logger: logger.Named("calls")}
}

func (c *CallLogger) CanPlaceCalls() bool {
	return c.enabled
}

func (c *CallLogger) PlaceCall(_ context.Context, number string) error {
	c.mu.Lock()
	c.placed = append(c.placed, number)
	c.mu.Unlock()
	c.logger.Info("dialing", zap.String("number", number))
	return nil
}

// Placed returns the numbers dialed so far.
func (c *CallLogger) Placed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.placed...)
}

// LoopPlayer stands in for the meditation sound player.
type LoopPlayer struct {
	logger *zap.Logger
}

var _ action.AudioPlayer = (*LoopPlayer)(nil)

func NewLoopPlayer(logger *zap.Logger) *LoopPlayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoopPlayer{logger: logger.Named("audio")}
}

func (p *LoopPlayer) PlayLoop(sound int) (action.AudioLoop, error) {
	p.logger.Info("looping meditation sound", zap.Int("sound", sound))
	return &loggedLoop{sound: sound, logger: p.logger}, nil
}

type loggedLoop struct {
	sound  int
	logger *zap.Logger
	once   sync.Once
}

func (l *loggedLoop) Stop() {
	l.logger.Info("sound stopped", zap.Int("sound", l.sound))
}

func (l *loggedLoop) Release() {
	l.once.Do(func() {
		l.logger.Debug("sound released", zap.Int("sound", l.sound))
	})
}
