package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"tradetalk/internal/domain/entity"
	"tradetalk/pkg/errors"
	"tradetalk/pkg/pairkey"
)

func newDirectDiscussion(t *testing.T, a, b string) *entity.Discussion {
	t.Helper()
	key, err := pairkey.Direct(a, b)
	require.NoError(t, err)
	participants := []string{a, b}
	if a > b {
		participants = []string{b, a}
	}
	return &entity.Discussion{
		Kind:         entity.DiscussionDirect,
		PairKey:      key,
		Participants: participants,
	}
}

func TestCreateEnforcesPairKeyUniqueness(t *testing.T) {
	repo := NewMemoryDiscussionRepository()
	ctx := context.Background()

	first := newDirectDiscussion(t, "u1", "u2")
	require.NoError(t, repo.Create(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 0, first.Unread["u1"])
	assert.Equal(t, 0, first.Unread["u2"])

	second := newDirectDiscussion(t, "u2", "u1")
	err := repo.Create(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "CONFLICT"))

	found, err := repo.GetByPairKey(ctx, first.PairKey)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	repo := NewMemoryDiscussionRepository()
	ctx := context.Background()

	const attempts = 32
	wins := make(chan string, attempts)

	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			d := newDirectDiscussion(t, "u1", "u2")
			err := repo.Create(ctx, d)
			if err == nil {
				wins <- d.ID
				return nil
			}
			if errors.Is(err, "CONFLICT") {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	close(wins)

	var winners []string
	for id := range wins {
		winners = append(winners, id)
	}
	require.Len(t, winners, 1)

	found, err := repo.GetByPairKey(ctx, "u1_u2")
	require.NoError(t, err)
	assert.Equal(t, winners[0], found.ID)
}

func TestAppendMessageOrderingAndSummary(t *testing.T) {
	repo := NewMemoryDiscussionRepository()
	ctx := context.Background()

	d := newDirectDiscussion(t, "u1", "u2")
	require.NoError(t, repo.Create(ctx, d))

	bodies := []string{"a", "b", "c"}
	senders := []string{"u1", "u2", "u1"}
	for i, body := range bodies {
		msg, err := repo.AppendMessage(ctx, &entity.Message{
			DiscussionID: d.ID,
			SenderID:     senders[i],
			Body:         body,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), msg.Seq)
		assert.NotEmpty(t, msg.ID)
	}

	messages, total, err := repo.ListMessages(ctx, d.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	for i := 1; i < len(messages); i++ {
		prev, cur := messages[i-1], messages[i]
		assert.True(t, cur.Seq > prev.Seq)
		assert.False(t, cur.CreatedAt.Before(prev.CreatedAt))
	}

	updated, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", updated.LastMessage)
	assert.Equal(t, "u1", updated.LastMessageSender)
	assert.Equal(t, messages[2].CreatedAt, updated.LastMessageAt)
	assert.Equal(t, int64(3), updated.MessageCount)
	// u2 read nothing: two messages from u1. u1 missed one from u2.
	assert.Equal(t, 2, updated.Unread["u2"])
	assert.Equal(t, 1, updated.Unread["u1"])
}

func TestAppendMessageUnknownDiscussion(t *testing.T) {
	repo := NewMemoryDiscussionRepository()

	_, err := repo.AppendMessage(context.Background(), &entity.Message{
		DiscussionID: "missing",
		SenderID:     "u1",
		Body:         "hello",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestResetUnreadIdempotent(t *testing.T) {
	repo := NewMemoryDiscussionRepository()
	ctx := context.Background()

	d := newDirectDiscussion(t, "u1", "u2")
	require.NoError(t, repo.Create(ctx, d))

	_, err := repo.AppendMessage(ctx, &entity.Message{DiscussionID: d.ID, SenderID: "u1", Body: "hi"})
	require.NoError(t, err)

	changed, err := repo.ResetUnread(ctx, d.ID, "u2")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.ResetUnread(ctx, d.ID, "u2")
	require.NoError(t, err)
	assert.False(t, changed)

	updated, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Unread["u2"])
}

func TestListByParticipantOrderAndPaging(t *testing.T) {
	repo := NewMemoryDiscussionRepository()
	ctx := context.Background()

	others := []string{"a", "b", "c"}
	for _, other := range others {
		d := newDirectDiscussion(t, "me", other)
		require.NoError(t, repo.Create(ctx, d))
		_, err := repo.AppendMessage(ctx, &entity.Message{DiscussionID: d.ID, SenderID: other, Body: "hello from " + other})
		require.NoError(t, err)
	}

	discussions, total, err := repo.ListByParticipant(ctx, "me", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, discussions, 2)
	// most recently active first
	assert.Equal(t, "hello from c", discussions[0].LastMessage)
	assert.Equal(t, "hello from b", discussions[1].LastMessage)

	rest, _, err := repo.ListByParticipant(ctx, "me", 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "hello from a", rest[0].LastMessage)

	none, total, err := repo.ListByParticipant(ctx, "stranger", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, none)
}

func TestMarkMessageRead(t *testing.T) {
	repo := NewMemoryDiscussionRepository()
	ctx := context.Background()

	d := newDirectDiscussion(t, "u1", "u2")
	require.NoError(t, repo.Create(ctx, d))

	msg, err := repo.AppendMessage(ctx, &entity.Message{DiscussionID: d.ID, SenderID: "u1", Body: "hi"})
	require.NoError(t, err)
	assert.False(t, msg.IsRead)

	require.NoError(t, repo.MarkMessageRead(ctx, d.ID, msg.ID))

	messages, _, err := repo.ListMessages(ctx, d.ID, 0, 0)
	require.NoError(t, err)
	assert.True(t, messages[0].IsRead)

	err = repo.MarkMessageRead(ctx, d.ID, "missing")
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}
