package livefeed

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradetalk/internal/domain/entity"
)

func event(discussionID string, seq int64) Event {
	return Event{
		Discussion: &entity.Discussion{ID: discussionID},
		Message:    &entity.Message{DiscussionID: discussionID, Seq: seq, Body: fmt.Sprintf("m%d", seq)},
	}
}

func collect(t *testing.T, sub *Subscription, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	for len(out) < n {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "subscription closed early")
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("d1")
	defer sub.Close()

	for i := int64(1); i <= 50; i++ {
		b.Publish("d1", event("d1", i))
	}

	events := collect(t, sub, 50)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Message.Seq)
	}
}

func TestSubscribersAreIndependent(t *testing.T) {
	b := NewBroker()
	s1 := b.Subscribe("d1")
	s2 := b.Subscribe("d1")
	other := b.Subscribe("d2")
	defer s2.Close()
	defer other.Close()

	b.Publish("d1", event("d1", 1))
	collect(t, s1, 1)
	collect(t, s2, 1)

	s1.Close()
	b.Publish("d1", event("d1", 2))

	got := collect(t, s2, 1)
	assert.Equal(t, int64(2), got[0].Message.Seq)
	assert.Equal(t, 1, b.SubscriberCount("d1"))

	// the d2 subscriber saw nothing
	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event for d2: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseStopsDeliveryAndIsIdempotent(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("d1")

	sub.Close()
	sub.Close()

	b.Publish("d1", event("d1", 1))

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok, "events channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("events channel never closed")
	}
	assert.Equal(t, 0, b.SubscriberCount("d1"))
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("d1")
	defer sub.Close()

	// Nobody reads sub yet; publishing must still return promptly.
	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 1000; i++ {
			b.Publish("d1", event("d1", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	events := collect(t, sub, 1000)
	assert.Equal(t, int64(1000), events[len(events)-1].Message.Seq)
}
