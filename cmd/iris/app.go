package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/internal/config"
	"github.com/zhouzirui/iris-chat/internal/platform"
	"github.com/zhouzirui/iris-chat/internal/service/chatlog"
	"github.com/zhouzirui/iris-chat/internal/service/connection"
	"github.com/zhouzirui/iris-chat/internal/service/session"
	"github.com/zhouzirui/iris-chat/internal/service/upload"
)

// app holds everything a command needs to talk to the assistant.
type app struct {
	log   *chatlog.SQLiteLog
	coord *session.Coordinator
	calls *platform.CallLogger
}

func openLog(c *config.ClientConfig) (*chatlog.SQLiteLog, error) {
	l, err := chatlog.OpenSQLite(c.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening conversation log: %w", err)
	}
	return l, nil
}

// newApp wires the conversation log, device adapters and coordinator.
func newApp(c *config.ClientConfig, lg *zap.Logger) (*app, error) {
	contacts, err := platform.LoadContacts(c.ContactsFile)
	if err != nil {
		return nil, err
	}

	l, err := chatlog.OpenSQLite(c.DBPath, lg)
	if err != nil {
		return nil, fmt.Errorf("opening conversation log: %w", err)
	}

	calls := platform.NewCallLogger(c.CallsEnabled, lg)

	var uploader session.Uploader
	if c.UploadURL != "" {
		uploader = upload.NewClient(upload.Options{
			Endpoint:   c.UploadURL,
			UserID:     c.UserID,
			ChatID:     c.ChatID,
			HTTPClient: &http.Client{Timeout: 2 * time.Minute},
			Logger:     lg,
		})
	}

	connOpts := connection.DefaultOptions()
	connOpts.BaseURL = c.ServerURL
	connOpts.ReconnectDelay = c.ReconnectDelay
	connOpts.KeepaliveInterval = c.KeepaliveInterval

	coord, err := session.NewCoordinator(session.Config{
		ClientID:          c.ClientID,
		SlowResponseAfter: c.SlowResponseAfter,
		Connection:        connOpts,
	}, session.Deps{
		Log:      l,
		Uploader: uploader,
		Contacts: contacts,
		Calls:    calls,
		Audio:    platform.NewLoopPlayer(lg),
		Logger:   lg,
	})
	if err != nil {
		_ = l.Close()
		return nil, err
	}

	lg.Info("client configured",
		zap.String("server", c.ServerURL),
		zap.String("client", c.ClientID),
		zap.Int("contacts", contacts.Len()),
		zap.Bool("calls", c.CallsEnabled))
	return &app{log: l, coord: coord, calls: calls}, nil
}

func (a *app) start(ctx context.Context) error {
	return a.coord.Start(ctx)
}

func (a *app) close() {
	if err := a.coord.Close(); err != nil {
		logger.Warn("closing session", zap.Error(err))
	}
	if err := a.log.Close(); err != nil {
		logger.Warn("closing conversation log", zap.Error(err))
	}
}
