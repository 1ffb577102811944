package server

import "context"

// MessageStore is the durable collaborator that persists chat messages beyond
// the process lifetime. The relay treats it as append-only: records are never
// updated or deleted, and a failing store never blocks the in-memory path.
type MessageStore interface {
	// SaveMessage persists a single message.
	SaveMessage(ctx context.Context, msg Message) error

	// RecentMessages returns up to limit of the most recently persisted
	// messages, ordered oldest first.
	RecentMessages(ctx context.Context, limit int) ([]Message, error)
}
