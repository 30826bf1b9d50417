package domain

import "context"

// ConversationStore is the durable per-user bounded history.
// History returns the capped history oldest first; an unseen user yields an
// empty slice. Append atomically records one user/assistant pair and evicts
// the oldest pairs beyond the configured capacity. Implementations must
// support atomic per-key read-modify-write; per-user call serialization is
// the caller's responsibility.
type ConversationStore interface {
	History(ctx context.Context, userID string) ([]Exchange, error)
	Append(ctx context.Context, userID, userText, assistantText string) error
	Clear(ctx context.Context, userID string) error

	// Seen reports whether a provider message ID was already processed;
	// MarkSeen records it. Used to drop webhook redeliveries.
	Seen(ctx context.Context, messageID string) (bool, error)
	MarkSeen(ctx context.Context, messageID string) error

	Close() error
}
