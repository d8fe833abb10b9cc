package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradetalk/internal/domain/entity"
	"tradetalk/internal/domain/repository"
	"tradetalk/pkg/errors"
)

// memoryDiscussionRepository is the in-process implementation of the discussion
// store, used in tests and local development. It provides the same guarantees
// as the Firestore implementation: pair-key uniqueness on Create and atomic
// message append + summary update under a single lock.
type memoryDiscussionRepository struct {
	mu          sync.RWMutex
	discussions map[string]*entity.Discussion
	byPairKey   map[string]string
	messages    map[string][]*entity.Message
}

func NewMemoryDiscussionRepository() repository.DiscussionRepository {
	return &memoryDiscussionRepository{
		discussions: make(map[string]*entity.Discussion),
		byPairKey:   make(map[string]string),
		messages:    make(map[string][]*entity.Message),
	}
}

func (r *memoryDiscussionRepository) Create(ctx context.Context, discussion *entity.Discussion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byPairKey[discussion.PairKey]; taken {
		return errors.Conflict("Discussion already exists for this pair")
	}

	if discussion.ID == "" {
		discussion.ID = uuid.New().String()
	}
	now := time.Now()
	discussion.CreatedAt = now
	discussion.UpdatedAt = now
	if discussion.Unread == nil {
		discussion.Unread = make(map[string]int)
	}
	for _, p := range discussion.Participants {
		if _, ok := discussion.Unread[p]; !ok {
			discussion.Unread[p] = 0
		}
	}

	r.discussions[discussion.ID] = cloneDiscussion(discussion)
	r.byPairKey[discussion.PairKey] = discussion.ID
	return nil
}

func (r *memoryDiscussionRepository) GetByID(ctx context.Context, id string) (*entity.Discussion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.discussions[id]
	if !ok {
		return nil, errors.NotFound("Discussion", nil)
	}
	return cloneDiscussion(d), nil
}

func (r *memoryDiscussionRepository) GetByPairKey(ctx context.Context, pairKey string) (*entity.Discussion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPairKey[pairKey]
	if !ok {
		return nil, errors.NotFound("Discussion", nil)
	}
	return cloneDiscussion(r.discussions[id]), nil
}

func (r *memoryDiscussionRepository) ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]*entity.Discussion, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*entity.Discussion
	for _, d := range r.discussions {
		if d.HasParticipant(participantID) {
			matched = append(matched, d)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	total := int64(len(matched))
	start, end := pageBounds(len(matched), limit, offset)

	result := make([]*entity.Discussion, 0, end-start)
	for _, d := range matched[start:end] {
		result = append(result, cloneDiscussion(d))
	}
	return result, total, nil
}

func (r *memoryDiscussionRepository) ResetUnread(ctx context.Context, discussionID, participantID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.discussions[discussionID]
	if !ok {
		return false, errors.NotFound("Discussion", nil)
	}
	if d.Unread[participantID] == 0 {
		return false, nil
	}
	d.Unread[participantID] = 0
	d.UpdatedAt = time.Now()
	return true, nil
}

func (r *memoryDiscussionRepository) AppendMessage(ctx context.Context, message *entity.Message) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.discussions[message.DiscussionID]
	if !ok {
		return nil, errors.NotFound("Discussion", nil)
	}

	stored := &entity.Message{
		ID:           uuid.New().String(),
		DiscussionID: message.DiscussionID,
		SenderID:     message.SenderID,
		Body:         message.Body,
		Seq:          d.MessageCount + 1,
		CreatedAt:    serverTime(d.LastMessageAt),
	}

	r.messages[d.ID] = append(r.messages[d.ID], stored)

	d.MessageCount = stored.Seq
	d.LastMessage = stored.Body
	d.LastMessageAt = stored.CreatedAt
	d.LastMessageSender = stored.SenderID
	d.UpdatedAt = stored.CreatedAt
	for _, p := range d.Participants {
		if p != stored.SenderID {
			d.Unread[p]++
		}
	}

	return cloneMessage(stored), nil
}

func (r *memoryDiscussionRepository) ListMessages(ctx context.Context, discussionID string, limit, offset int) ([]*entity.Message, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.discussions[discussionID]; !ok {
		return nil, 0, errors.NotFound("Discussion", nil)
	}

	log := r.messages[discussionID]
	total := int64(len(log))
	start, end := pageBounds(len(log), limit, offset)

	result := make([]*entity.Message, 0, end-start)
	for _, m := range log[start:end] {
		result = append(result, cloneMessage(m))
	}
	return result, total, nil
}

func (r *memoryDiscussionRepository) MarkMessageRead(ctx context.Context, discussionID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages[discussionID] {
		if m.ID == messageID {
			m.IsRead = true
			return nil
		}
	}
	return errors.NotFound("Message", nil)
}

// serverTime returns the append timestamp, clamped so timestamps within one
// discussion never run backwards even if the wall clock does.
func serverTime(last time.Time) time.Time {
	now := time.Now()
	if now.Before(last) {
		return last
	}
	return now
}

func pageBounds(length, limit, offset int) (int, int) {
	start := offset
	if start > length {
		start = length
	}
	end := length
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return start, end
}

func cloneDiscussion(d *entity.Discussion) *entity.Discussion {
	c := *d
	c.Participants = append([]string(nil), d.Participants...)
	c.Unread = make(map[string]int, len(d.Unread))
	for k, v := range d.Unread {
		c.Unread[k] = v
	}
	if d.Profiles != nil {
		c.Profiles = make(map[string]entity.ParticipantProfile, len(d.Profiles))
		for k, v := range d.Profiles {
			c.Profiles[k] = v
		}
	}
	if d.Product != nil {
		p := *d.Product
		c.Product = &p
	}
	return &c
}

func cloneMessage(m *entity.Message) *entity.Message {
	c := *m
	return &c
}
