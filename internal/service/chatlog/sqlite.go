package chatlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
)

// SQLiteLog implements Log on top of an SQLite database file.
type SQLiteLog struct {
	db     *sql.DB
	logger *zap.Logger
	bc     *broadcaster

	// writeMu orders write+publish pairs so subscribers see FIFO snapshots.
	writeMu sync.Mutex
	closed  bool
}

var _ Log = (*SQLiteLog)(nil)

// OpenSQLite opens (or creates) the log at path. Parent directories are
// created if needed.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteLog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("chatlog")

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// single writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &SQLiteLog{
		db:     db,
		logger: logger,
		bc:     newBroadcaster(logger),
	}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("conversation log opened", zap.String("path", path))
	return l, nil
}

func (l *SQLiteLog) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			is_user INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			file_url TEXT,
			file_type TEXT,
			file_name TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_chat_messages_timestamp
			ON chat_messages(timestamp);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Observe subscribes to the log. The subscription ends when ctx is cancelled,
// Close is called on it, or the log is closed.
func (l *SQLiteLog) Observe(ctx context.Context) (*Subscription, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	snapshot, err := l.query(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := l.bc.subscribe(ctx)
	if err != nil {
		return nil, err
	}
	l.bc.deliver(sub.ID(), snapshot)
	return sub, nil
}

// List returns every message sorted by timestamp ascending. Messages sharing a
// timestamp keep their insertion order.
func (l *SQLiteLog) List(ctx context.Context) ([]chat.Message, error) {
	return l.query(ctx)
}

func (l *SQLiteLog) query(ctx context.Context) ([]chat.Message, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, text, is_user, timestamp, file_url, file_type, file_name
		FROM chat_messages
		ORDER BY timestamp ASC, rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0, 32)
	for rows.Next() {
		var (
			msg                         chat.Message
			isUser                      int
			fileURL, fileType, fileName sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.Text, &isUser, &msg.TimestampMillis, &fileURL, &fileType, &fileName); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.IsFromUser = isUser != 0
		if fileURL.Valid || fileType.Valid || fileName.Valid {
			msg.Attachment = &chat.Attachment{
				URL:         fileURL.String,
				MimeType:    fileType.String,
				DisplayName: fileName.String,
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// InsertOrReplace stores msg, replacing any message with the same id.
func (l *SQLiteLog) InsertOrReplace(ctx context.Context, msg chat.Message) error {
	if strings.TrimSpace(msg.ID) == "" {
		return ErrInvalidMessage
	}

	var fileURL, fileType, fileName sql.NullString
	if msg.Attachment != nil {
		fileURL = sql.NullString{String: msg.Attachment.URL, Valid: true}
		fileType = sql.NullString{String: msg.Attachment.MimeType, Valid: true}
		fileName = sql.NullString{String: msg.Attachment.DisplayName, Valid: true}
	}
	isUser := 0
	if msg.IsFromUser {
		isUser = 1
	}

	return l.write(ctx, "inserting message", `
		INSERT OR REPLACE INTO chat_messages (id, text, is_user, timestamp, file_url, file_type, file_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.Text, isUser, msg.TimestampMillis, fileURL, fileType, fileName)
}

// DeleteByID removes the message with id. Missing ids are not an error.
func (l *SQLiteLog) DeleteByID(ctx context.Context, id string) error {
	return l.write(ctx, "deleting message", `DELETE FROM chat_messages WHERE id = ?`, id)
}

// DeleteAll clears the log.
func (l *SQLiteLog) DeleteAll(ctx context.Context) error {
	return l.write(ctx, "clearing messages", `DELETE FROM chat_messages`)
}

func (l *SQLiteLog) write(ctx context.Context, op, stmt string, args ...any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if _, err := l.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	snapshot, err := l.query(ctx)
	if err != nil {
		// the write committed; subscribers catch up on the next one
		l.logger.Warn("failed to refresh snapshot", zap.String("op", op), zap.Error(err))
		return nil
	}
	l.bc.publish(snapshot)
	return nil
}

// Close ends all subscriptions and closes the database.
func (l *SQLiteLog) Close() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.bc.close()
	return l.db.Close()
}
