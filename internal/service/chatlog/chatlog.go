// Package chatlog holds the durable, observable conversation record. The log
// is the single source of truth for what the UI renders: every writer funnels
// through InsertOrReplace/DeleteByID/DeleteAll and every reader observes
// ordered snapshots.
package chatlog

import (
	"context"
	"errors"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
)

var (
	ErrInvalidMessage = errors.New("message id is required")
	ErrClosed         = errors.New("conversation log closed")
)

// Log is the contract the session core consumes.
type Log interface {
	// Observe returns a live subscription. The current snapshot is delivered
	// first, then one snapshot per committed write.
	Observe(ctx context.Context) (*Subscription, error)
	// List returns the current snapshot, sorted by timestamp ascending.
	List(ctx context.Context) ([]chat.Message, error)
	InsertOrReplace(ctx context.Context, msg chat.Message) error
	DeleteByID(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}
