package repository

import (
	"context"

	"tradetalk/internal/domain/entity"
)

// DiscussionRepository owns discussion records and their per-discussion message
// logs. Implementations must enforce pair-key uniqueness on Create and apply
// AppendMessage as one atomic unit (message insert plus parent summary update).
type DiscussionRepository interface {
	// Create inserts a new discussion. When another discussion already holds the
	// same pair key it returns a CONFLICT error and writes nothing.
	Create(ctx context.Context, discussion *entity.Discussion) error
	GetByID(ctx context.Context, id string) (*entity.Discussion, error)
	GetByPairKey(ctx context.Context, pairKey string) (*entity.Discussion, error)
	ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]*entity.Discussion, int64, error)

	// ResetUnread zeroes the participant's unread counter. The returned bool
	// reports whether anything changed; resetting an already-zero counter is a
	// no-op and must not touch the record.
	ResetUnread(ctx context.Context, discussionID, participantID string) (bool, error)

	// AppendMessage assigns id, sequence number and server timestamp, appends
	// the message to the discussion's log and updates the discussion summary
	// (last message fields, unread counters, message count) atomically. A failed
	// append leaves no partial state behind.
	AppendMessage(ctx context.Context, message *entity.Message) (*entity.Message, error)
	ListMessages(ctx context.Context, discussionID string, limit, offset int) ([]*entity.Message, int64, error)
	MarkMessageRead(ctx context.Context, discussionID, messageID string) error
}
