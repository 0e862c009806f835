package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
	"github.com/zhouzirui/iris-chat/internal/service/session"
)

var errTimeout = errors.New("timed out waiting for the assistant")

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.start(ctx); err != nil {
		return err
	}

	updates := a.coord.Updates()
	if _, err := waitFor(ctx, updates, func(s session.Snapshot) bool {
		return s.Connection == chat.Connected
	}); err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.ServerURL, err)
	}

	previous, err := a.log.List(ctx)
	if err != nil {
		return err
	}
	if err := a.coord.SendUserMessage(ctx, strings.Join(args, " ")); err != nil {
		return err
	}

	snap, err := waitFor(ctx, updates, func(s session.Snapshot) bool {
		return !s.AwaitingReply
	})
	if err != nil {
		return err
	}

	// the reply is in the log before the awaiting flag clears
	current, err := a.log.List(ctx)
	if err != nil {
		return err
	}
	printMessages(cmd.OutOrStdout(), newReplies(previous, current))
	if snap.Session.Active {
		fmt.Fprintf(cmd.OutOrStdout(), "session running: %s left\n", formatCountdown(snap.Session.RemainingSeconds))
	}
	return nil
}

// waitFor reads updates until cond holds for a snapshot.
func waitFor(ctx context.Context, updates <-chan session.Snapshot, cond func(session.Snapshot) bool) (session.Snapshot, error) {
	for {
		select {
		case s, ok := <-updates:
			if !ok {
				return session.Snapshot{}, session.ErrClosed
			}
			if cond(s) {
				return s, nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return session.Snapshot{}, errTimeout
			}
			return session.Snapshot{}, ctx.Err()
		}
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	l, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	messages, err := l.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no messages")
		return nil
	}
	for _, m := range messages {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", m.ID, plainLine(m))
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	l, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer l.Close()
	return l.DeleteByID(cmd.Context(), args[0])
}

func runClear(cmd *cobra.Command, args []string) error {
	l, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer l.Close()
	if err := l.DeleteAll(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "conversation cleared")
	return nil
}

// newReplies returns the assistant messages in current that are not in previous.
func newReplies(previous, current []chat.Message) []chat.Message {
	seen := make(map[string]struct{}, len(previous))
	for _, m := range previous {
		seen[m.ID] = struct{}{}
	}
	var out []chat.Message
	for _, m := range current {
		if _, ok := seen[m.ID]; ok || m.IsFromUser {
			continue
		}
		out = append(out, m)
	}
	return out
}

func printMessages(w io.Writer, messages []chat.Message) {
	for _, m := range messages {
		fmt.Fprintln(w, plainLine(m))
	}
}
