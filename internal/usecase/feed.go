package usecase

import (
	"context"

	"tradetalk/internal/domain/entity"
	"tradetalk/internal/infrastructure/livefeed"
	"tradetalk/pkg/errors"
)

// Feed is a live view of one discussion: the history available at subscribe
// time plus a channel of every send committed after it. Between Initial and
// Updates no message is lost and none is delivered twice.
type Feed struct {
	Discussion *entity.Discussion
	Initial    []*entity.Message

	updates chan livefeed.Event
	sub     *livefeed.Subscription
}

// Updates yields committed sends after the initial snapshot, in commit order.
// Closed when the feed is closed.
func (f *Feed) Updates() <-chan livefeed.Event {
	return f.updates
}

// Close detaches the feed from the live stream. Idempotent.
func (f *Feed) Close() {
	f.sub.Close()
}

// Subscribe opens a live feed on a discussion for one of its participants.
//
// The subscription is registered before the history read, so a send that lands
// between the two shows up on the update channel; the sequence numbers already
// present in Initial are filtered out of the updates to keep delivery
// exactly-once.
func (uc *DiscussionUseCase) Subscribe(ctx context.Context, discussionID, participantID string) (*Feed, error) {
	discussion, err := uc.discussionRepo.GetByID(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	if !discussion.HasParticipant(participantID) {
		return nil, errors.Forbidden("User is not a participant in this discussion", nil)
	}

	sub := uc.broker.Subscribe(discussionID)

	history, _, err := uc.discussionRepo.ListMessages(ctx, discussionID, 0, 0)
	if err != nil {
		sub.Close()
		return nil, err
	}

	var lastSeq int64
	if len(history) > 0 {
		lastSeq = history[len(history)-1].Seq
	}

	feed := &Feed{
		Discussion: discussion,
		Initial:    history,
		updates:    make(chan livefeed.Event),
		sub:        sub,
	}

	go func() {
		defer close(feed.updates)
		for event := range sub.Events() {
			if event.Message != nil && event.Message.Seq <= lastSeq {
				continue
			}
			feed.updates <- event
		}
	}()

	return feed, nil
}
