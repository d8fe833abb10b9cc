package repository

import (
	"context"
	stderrors "errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tradetalk/internal/domain/entity"
	"tradetalk/internal/domain/repository"
	"tradetalk/pkg/errors"
)

const (
	discussionsCollection    = "discussions"
	messagesSubcollection    = "messages"
	discussionKeysCollection = "discussion_keys"
)

// pairKeyDoc reserves a canonical pair key. Its document id is the key itself,
// so a transactional Create on it is the uniqueness constraint that makes
// concurrent discussion creation safe.
type pairKeyDoc struct {
	DiscussionID string    `firestore:"discussionId"`
	PairKey      string    `firestore:"pairKey"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

type firestoreDiscussionRepository struct {
	client *firestore.Client
}

func NewFirestoreDiscussionRepository(client *firestore.Client) repository.DiscussionRepository {
	return &firestoreDiscussionRepository{
		client: client,
	}
}

func (r *firestoreDiscussionRepository) Create(ctx context.Context, discussion *entity.Discussion) error {
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

	keyRef := r.client.Collection(discussionKeysCollection).Doc(discussion.PairKey)
	discRef := r.client.Collection(discussionsCollection).Doc(discussion.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(keyRef)
		if err == nil {
			return errors.Conflict("Discussion already exists for this pair")
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		if err := tx.Create(keyRef, pairKeyDoc{
			DiscussionID: discussion.ID,
			PairKey:      discussion.PairKey,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		return tx.Set(discRef, discussion)
	})
	if err != nil {
		return mapStoreError("create discussion", err)
	}

	return nil
}

func (r *firestoreDiscussionRepository) GetByID(ctx context.Context, id string) (*entity.Discussion, error) {
	doc, err := r.client.Collection(discussionsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Discussion", nil)
		}
		return nil, mapStoreError("get discussion", err)
	}

	var discussion entity.Discussion
	if err := doc.DataTo(&discussion); err != nil {
		return nil, errors.Internal("Failed to parse discussion data", err)
	}
	return &discussion, nil
}

func (r *firestoreDiscussionRepository) GetByPairKey(ctx context.Context, pairKey string) (*entity.Discussion, error) {
	doc, err := r.client.Collection(discussionKeysCollection).Doc(pairKey).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Discussion", nil)
		}
		return nil, mapStoreError("get discussion key", err)
	}

	var key pairKeyDoc
	if err := doc.DataTo(&key); err != nil {
		return nil, errors.Internal("Failed to parse discussion key data", err)
	}
	return r.GetByID(ctx, key.DiscussionID)
}

func (r *firestoreDiscussionRepository) ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]*entity.Discussion, int64, error) {
	query := r.client.Collection(discussionsCollection).
		Where("participants", "array-contains", participantID).
		OrderBy("updatedAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, mapStoreError("list discussions", err)
	}

	total := int64(len(allDocs))
	start, end := pageBounds(len(allDocs), limit, offset)

	var discussions []*entity.Discussion
	for _, doc := range allDocs[start:end] {
		var discussion entity.Discussion
		if err := doc.DataTo(&discussion); err != nil {
			continue // skip malformed documents
		}
		discussions = append(discussions, &discussion)
	}

	return discussions, total, nil
}

func (r *firestoreDiscussionRepository) ResetUnread(ctx context.Context, discussionID, participantID string) (bool, error) {
	discRef := r.client.Collection(discussionsCollection).Doc(discussionID)

	changed := false
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(discRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Discussion", nil)
			}
			return err
		}

		var discussion entity.Discussion
		if err := doc.DataTo(&discussion); err != nil {
			return errors.Internal("Failed to parse discussion data", err)
		}

		if discussion.Unread[participantID] == 0 {
			return nil
		}

		changed = true
		discussion.Unread[participantID] = 0
		discussion.UpdatedAt = time.Now()
		return tx.Set(discRef, &discussion)
	})
	if err != nil {
		return false, mapStoreError("reset unread", err)
	}

	return changed, nil
}

// AppendMessage runs the message insert and the parent summary update in one
// transaction, so a send is never observable half-applied and the per-discussion
// sequence counter stays gapless.
func (r *firestoreDiscussionRepository) AppendMessage(ctx context.Context, message *entity.Message) (*entity.Message, error) {
	discRef := r.client.Collection(discussionsCollection).Doc(message.DiscussionID)

	var stored entity.Message
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(discRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Discussion", nil)
			}
			return err
		}

		var discussion entity.Discussion
		if err := doc.DataTo(&discussion); err != nil {
			return errors.Internal("Failed to parse discussion data", err)
		}

		stored = entity.Message{
			ID:           uuid.New().String(),
			DiscussionID: message.DiscussionID,
			SenderID:     message.SenderID,
			Body:         message.Body,
			Seq:          discussion.MessageCount + 1,
			CreatedAt:    serverTime(discussion.LastMessageAt),
		}

		msgRef := discRef.Collection(messagesSubcollection).Doc(stored.ID)
		if err := tx.Create(msgRef, &stored); err != nil {
			return err
		}

		discussion.MessageCount = stored.Seq
		discussion.LastMessage = stored.Body
		discussion.LastMessageAt = stored.CreatedAt
		discussion.LastMessageSender = stored.SenderID
		discussion.UpdatedAt = stored.CreatedAt
		for _, p := range discussion.Participants {
			if p != stored.SenderID {
				discussion.Unread[p]++
			}
		}
		return tx.Set(discRef, &discussion)
	})
	if err != nil {
		return nil, mapStoreError("append message", err)
	}

	return &stored, nil
}

func (r *firestoreDiscussionRepository) ListMessages(ctx context.Context, discussionID string, limit, offset int) ([]*entity.Message, int64, error) {
	base := r.client.Collection(discussionsCollection).Doc(discussionID).
		Collection(messagesSubcollection).OrderBy("seq", firestore.Asc)

	countDocs, err := base.Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, mapStoreError("count messages", err)
	}
	total := int64(len(countDocs))

	query := base
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, mapStoreError("iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, 0, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	return messages, total, nil
}

func (r *firestoreDiscussionRepository) MarkMessageRead(ctx context.Context, discussionID, messageID string) error {
	msgRef := r.client.Collection(discussionsCollection).Doc(discussionID).
		Collection(messagesSubcollection).Doc(messageID)

	_, err := msgRef.Update(ctx, []firestore.Update{
		{Path: "isRead", Value: true},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", nil)
		}
		return mapStoreError("mark message read", err)
	}
	return nil
}

// mapStoreError translates Firestore failures into the service taxonomy.
// Application errors raised inside transactions pass through unchanged.
func mapStoreError(op string, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	switch status.Code(err) {
	case codes.AlreadyExists, codes.Aborted:
		return errors.Conflict("Discussion already exists for this pair")
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return errors.StoreUnavailable("Discussion store is unavailable", err)
	default:
		return errors.Internal("Failed to "+op, err)
	}
}
