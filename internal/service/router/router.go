// Package router classifies inbound assistant frames and sends each one to
// the conversation log or to the action executor.
package router

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
)

// Writer is the part of the conversation log the router writes to.
type Writer interface {
	InsertOrReplace(ctx context.Context, msg chat.Message) error
}

// Executor runs decoded action commands.
type Executor interface {
	ExecuteCall(ctx context.Context, target string) (string, error)
	StartSession(durationMinutes, soundIndex int) chat.TimedSession
}

// Outcome reports what Route did with a frame.
type Outcome int

const (
	OutcomeText Outcome = iota
	OutcomeAction
	OutcomeIgnored
)

// Replied reports whether the frame counts as the assistant's reply.
func (o Outcome) Replied() bool {
	return o != OutcomeIgnored
}

func (o Outcome) String() string {
	switch o {
	case OutcomeText:
		return "text"
	case OutcomeAction:
		return "action"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Router routes inbound frames. Route must be called from the session's
// single owning goroutine.
type Router struct {
	log    Writer
	exec   Executor
	clock  clock.Clock
	logger *zap.Logger
}

// New creates a router.
func New(log Writer, exec Executor, clk clock.Clock, logger *zap.Logger) *Router {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{log: log, exec: exec, clock: clk, logger: logger.Named("router")}
}

// Route handles one raw frame. It never fails: undecodable frames become
// plain assistant text.
func (r *Router) Route(ctx context.Context, raw string) Outcome {
	decoded := Decode(raw)

	switch decoded.Kind {
	case KindText:
		r.logger.Debug("inbound text", zap.Int("length", len(raw)))
		r.write(ctx, decoded.Text)
		return OutcomeText

	case KindAction:
		r.logger.Debug("inbound action", zap.String("action", chat.ActionName(decoded.Command)))
		switch cmd := decoded.Command.(type) {
		case chat.CallAction:
			text, err := r.exec.ExecuteCall(ctx, cmd.Target)
			if err != nil {
				// resolution and permission failures stay out of the conversation
				r.logger.Warn("call action not executed", zap.String("target", cmd.Target), zap.Error(err))
				return OutcomeAction
			}
			r.write(ctx, text)
			return OutcomeAction

		case chat.MeditateAction:
			session := r.exec.StartSession(cmd.DurationMinutes, cmd.SoundIndex)
			r.write(ctx, meditateConfirmation(cmd.DurationMinutes, session.SoundIndex))
			return OutcomeAction
		}
	}

	r.logger.Info("ignoring unsupported frame",
		zap.String("type", decoded.Type),
		zap.String("action", decoded.Action))
	return OutcomeIgnored
}

func (r *Router) write(ctx context.Context, text string) {
	msg := chat.NewAssistantMessage(text, r.clock.Now())
	if err := r.log.InsertOrReplace(ctx, msg); err != nil {
		r.logger.Error("failed to record inbound message", zap.String("id", msg.ID), zap.Error(err))
	}
}

// meditateConfirmation shows the requested minutes, floored at zero, and the
// sound actually playing.
func meditateConfirmation(minutes, sound int) string {
	return fmt.Sprintf("Starting %d-minute session with sound #%d...", max(minutes, 0), sound)
}
