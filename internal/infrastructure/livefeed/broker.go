// Package livefeed implements the in-process publish/subscribe channel that
// fans committed messages out to discussion subscribers. Delivery is decoupled
// from the write path: publishing appends to per-subscriber queues and returns,
// each subscription drains its own queue with a dedicated goroutine.
package livefeed

import (
	"sync"

	"tradetalk/internal/domain/entity"
)

// Event is one committed send: the message and the discussion summary as it
// stood after that commit.
type Event struct {
	Discussion *entity.Discussion `json:"discussion"`
	Message    *entity.Message    `json:"message"`
}

type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new independent subscription for a discussion. Events
// published after this call are delivered on Events() in publish order.
func (b *Broker) Subscribe(discussionID string) *Subscription {
	s := &Subscription{
		broker:       b,
		discussionID: discussionID,
		events:       make(chan Event),
		stop:         make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	set, ok := b.subs[discussionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[discussionID] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()

	go s.run()
	return s
}

// Publish enqueues the event for every active subscriber of the discussion.
// It never blocks on slow consumers.
func (b *Broker) Publish(discussionID string, event Event) {
	b.mu.RLock()
	set := b.subs[discussionID]
	targets := make([]*Subscription, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(event)
	}
}

// SubscriberCount reports the number of active subscriptions for a discussion.
func (b *Broker) SubscriberCount(discussionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[discussionID])
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	if set, ok := b.subs[s.discussionID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.discussionID)
		}
	}
	b.mu.Unlock()
}

// Subscription is one delivery handle. Closing it affects neither other
// subscribers nor the stores.
type Subscription struct {
	broker       *Broker
	discussionID string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool

	events chan Event
	stop   chan struct{}
}

// Events yields published events in order. The channel is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) DiscussionID() string {
	return s.discussionID
}

// Close cancels the subscription. Idempotent; no deliveries happen afterwards.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stop)
	s.cond.Signal()
	s.mu.Unlock()

	s.broker.remove(s)
}

func (s *Subscription) enqueue(event Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, event)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *Subscription) run() {
	defer close(s.events)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.events <- event:
		case <-s.stop:
			return
		}
	}
}
