// Package store provides the DedupRepo interface for inbound message deduplication.
package store

import "context"

// DedupRepo records platform message IDs so a redelivered message is handled once.
type DedupRepo interface {
	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(ctx context.Context, messageID, userID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(ctx context.Context, messageID string) error
}
