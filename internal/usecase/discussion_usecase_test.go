package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"tradetalk/internal/adapter/repository"
	"tradetalk/internal/domain/entity"
	"tradetalk/internal/infrastructure/livefeed"
	"tradetalk/pkg/errors"
)

func newTestUseCase(t *testing.T) (*DiscussionUseCase, *repository.MemoryProfileProvider, *repository.MemoryProductCatalog) {
	t.Helper()

	profiles := repository.NewMemoryProfileProvider()
	catalog := repository.NewMemoryProductCatalog()
	uc := NewDiscussionUseCase(
		repository.NewMemoryDiscussionRepository(),
		profiles,
		catalog,
		livefeed.NewBroker(),
		nil,
	)

	for _, id := range []string{"u1", "u2", "u3", "buyer", "seller"} {
		profiles.AddProfile(entity.ParticipantProfile{ID: id, Username: id})
	}

	return uc, profiles, catalog
}

func TestStartDiscussionIdempotentAcrossOrder(t *testing.T) {
	uc, _, _ := newTestUseCase(t)
	ctx := context.Background()

	first, err := uc.StartDiscussion(ctx, "u1", StartDiscussionInput{
		Kind:    entity.DiscussionDirect,
		OtherID: "u2",
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, []string{"u1", "u2"}, first.Participants)
	assert.Equal(t, "u1", first.Profiles["u1"].Username)

	// same pair, opposite caller: must resolve to the same record
	second, err := uc.StartDiscussion(ctx, "u2", StartDiscussionInput{
		Kind:    entity.DiscussionDirect,
		OtherID: "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	list, total, err := uc.ListDiscussions(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
}

func TestStartDiscussionConcurrentSameResult(t *testing.T) {
	uc, _, _ := newTestUseCase(t)
	ctx := context.Background()

	const callers = 24
	ids := make(chan string, callers)

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		caller, other := "u1", "u2"
		if i%2 == 1 {
			caller, other = "u2", "u1"
		}
		g.Go(func() error {
			d, err := uc.StartDiscussion(ctx, caller, StartDiscussionInput{
				Kind:    entity.DiscussionDirect,
				OtherID: other,
			})
			if err != nil {
				return err
			}
			ids <- d.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(ids)

	var first string
	for id := range ids {
		if first == "" {
			first = id
		}
		assert.Equal(t, first, id)
	}
	require.NotEmpty(t, first)
}

func TestStartDiscussionValidation(t *testing.T) {
	uc, _, _ := newTestUseCase(t)
	ctx := context.Background()

	_, err := uc.StartDiscussion(ctx, "u1", StartDiscussionInput{
		Kind:    entity.DiscussionDirect,
		OtherID: "u1",
	})
	assert.True(t, errors.Is(err, "INVALID_PARTICIPANTS"))

	_, err = uc.StartDiscussion(ctx, "u1", StartDiscussionInput{
		Kind:      entity.DiscussionDirect,
		OtherID:   "u2",
		ProductID: "p1",
	})
	assert.True(t, errors.Is(err, "BAD_REQUEST"))

	_, err = uc.StartDiscussion(ctx, "u1", StartDiscussionInput{
		Kind:      entity.DiscussionMarketplace,
		ProductID: "missing",
	})
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestStartMarketplaceDiscussionResolvesSeller(t *testing.T) {
	uc, _, catalog := newTestUseCase(t)
	ctx := context.Background()

	catalog.AddProduct(entity.ProductSnapshot{
		ID:       "p1",
		Title:    "Mythic Account",
		Price:    125.50,
		SellerID: "seller",
	})

	d, err := uc.StartDiscussion(ctx, "buyer", StartDiscussionInput{
		Kind:      entity.DiscussionMarketplace,
		ProductID: "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.DiscussionMarketplace, d.Kind)
	assert.ElementsMatch(t, []string{"buyer", "seller"}, d.Participants)
	require.NotNil(t, d.Product)
	assert.Equal(t, "Mythic Account", d.Product.Title)
	assert.Equal(t, "p1", d.ProductID)

	// a second product with the same pair is a distinct discussion
	catalog.AddProduct(entity.ProductSnapshot{ID: "p2", Title: "Other", SellerID: "seller"})
	other, err := uc.StartDiscussion(ctx, "buyer", StartDiscussionInput{
		Kind:      entity.DiscussionMarketplace,
		ProductID: "p2",
	})
	require.NoError(t, err)
	assert.NotEqual(t, d.ID, other.ID)
}

func TestSendMessageUpdatesSummaryAndUnread(t *testing.T) {
	uc, _, _ := newTestUseCase(t)
	ctx := context.Background()

	d, err := uc.StartDiscussion(ctx, "u1", StartDiscussionInput{Kind: entity.DiscussionDirect, OtherID: "u2"})
	require.NoError(t, err)

	for i, send := range []struct{ sender, body string }{
		{"u1", "a"}, {"u2", "b"}, {"u1", "c"},
	} {
		msg, err := uc.SendMessage(ctx, d.ID, send.sender, send.body)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), msg.Seq)
	}

	updated, err := uc.GetDiscussion(ctx, "u1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", updated.LastMessage)
	assert.Equal(t, "u1", updated.LastMessageSender)
	assert.Equal(t, int64(3), updated.MessageCount)
	assert.Equal(t, 2, updated.Unread["u2"])
	assert.Equal(t, 1, updated.Unread["u1"])

	messages, total, err := uc.GetMessages(ctx, "u2", d.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, messages, 3)
	assert.Equal(t, "a", messages[0].Body)
	assert.Equal(t, "c", messages[2].Body)
}

func TestSendMessageRejectsEmptyBody(t *testing.T) {
	uc, _, _ := newTestUseCase(t)
	ctx := context.Background()

	d, err := uc.StartDiscussion(ctx, "u1", StartDiscussionInput{Kind: entity.DiscussionDirect, OtherID: "u2"})
	require.NoError(t, err)

	for _, body := range []string{"", "   ", "\n\t"} {
		_, err := uc.SendMessage(ctx, d.ID, "u1", body)
		assert.True(t, errors.Is(err, "EMPTY_MESSAGE"), "body %q", body)
	}

	updated, err := uc.GetDiscussion(ctx, "u1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.MessageCount)
	assert.Empty(t, updated.LastMessage)
}

func TestSendMessageGuardsParticipants(t *testing.T) {
	uc, _, _ := newTestUseCase(t)
	ctx := context.Background()

	d, err := uc.StartDiscussion(ctx, "u1", StartDiscussionInput{Kind: entity.DiscussionDirect, OtherID: "u2"})
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, d.ID, "u3", "let me in")
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	_, err = uc.SendMessage(ctx, "missing", "u1", "hello")
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestMarkReadIdempotent(t *testing.T) {
	uc, _, _ := newTestUseCase(t)
	ctx := context.Background()

	d, err := uc.StartDiscussion(ctx, "u1", StartDiscussionInput{Kind: entity.DiscussionDirect, OtherID: "u2"})
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, d.ID, "u1", "hello")
	require.NoError(t, err)

	require.NoError(t, uc.MarkRead(ctx, d.ID, "u2"))
	require.NoError(t, uc.MarkRead(ctx, d.ID, "u2"))

	updated, err := uc.GetDiscussion(ctx, "u2", d.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Unread["u2"])

	assert.True(t, errors.Is(uc.MarkRead(ctx, d.ID, "u3"), "FORBIDDEN"))
}

func TestSubscribeDeliversSendsInOrder(t *testing.T) {
	uc, _, _ := newTestUseCase(t)
	ctx := context.Background()

	d, err := uc.StartDiscussion(ctx, "u1", StartDiscussionInput{Kind: entity.DiscussionDirect, OtherID: "u2"})
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, d.ID, "u1", "before")
	require.NoError(t, err)

	feed, err := uc.Subscribe(ctx, d.ID, "u2")
	require.NoError(t, err)
	defer feed.Close()

	require.Len(t, feed.Initial, 1)
	assert.Equal(t, "before", feed.Initial[0].Body)

	for _, body := range []string{"a", "b", "c"} {
		_, err := uc.SendMessage(ctx, d.ID, "u1", body)
		require.NoError(t, err)
	}

	for _, want := range []string{"a", "b", "c"} {
		select {
		case event := <-feed.Updates():
			require.NotNil(t, event.Message)
			assert.Equal(t, want, event.Message.Body)
			require.NotNil(t, event.Discussion)
			assert.Equal(t, event.Message.Body, event.Discussion.LastMessage)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestSubscribeGuardsParticipants(t *testing.T) {
	uc, _, _ := newTestUseCase(t)
	ctx := context.Background()

	d, err := uc.StartDiscussion(ctx, "u1", StartDiscussionInput{Kind: entity.DiscussionDirect, OtherID: "u2"})
	require.NoError(t, err)

	_, err = uc.Subscribe(ctx, d.ID, "u3")
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestSubscriberIsolation(t *testing.T) {
	uc, _, _ := newTestUseCase(t)
	ctx := context.Background()

	d, err := uc.StartDiscussion(ctx, "u1", StartDiscussionInput{Kind: entity.DiscussionDirect, OtherID: "u2"})
	require.NoError(t, err)

	feedA, err := uc.Subscribe(ctx, d.ID, "u1")
	require.NoError(t, err)
	feedB, err := uc.Subscribe(ctx, d.ID, "u2")
	require.NoError(t, err)
	defer feedB.Close()

	feedA.Close()

	_, err = uc.SendMessage(ctx, d.ID, "u1", "still flowing")
	require.NoError(t, err)

	select {
	case event := <-feedB.Updates():
		assert.Equal(t, "still flowing", event.Message.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("surviving subscriber received nothing")
	}
}
