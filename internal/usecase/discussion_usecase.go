package usecase

import (
	"context"
	"strings"
	"sync"

	"tradetalk/internal/domain/entity"
	"tradetalk/internal/domain/repository"
	"tradetalk/internal/infrastructure/livefeed"
	"tradetalk/internal/infrastructure/ratelimit"
	"tradetalk/pkg/errors"
	"tradetalk/pkg/logger"
	"tradetalk/pkg/pairkey"
)

// DiscussionUseCase is the engine behind every screen that opens a chat:
// it resolves a participant pair (plus optional product) to exactly one
// discussion, appends messages with server-side ordering, maintains unread
// counters and fans committed sends out to live subscribers.
type DiscussionUseCase struct {
	discussionRepo repository.DiscussionRepository
	profiles       repository.ProfileProvider
	catalog        repository.ProductCatalog
	broker         *livefeed.Broker
	limiter        *ratelimit.RateLimiter

	// sendLocks serializes commit+publish per discussion so subscribers
	// observe events in commit order.
	sendLocks keyedMutex
}

// NewDiscussionUseCase wires the engine. limiter may be nil to disable
// per-user rate limiting (tests, internal callers).
func NewDiscussionUseCase(
	discussionRepo repository.DiscussionRepository,
	profiles repository.ProfileProvider,
	catalog repository.ProductCatalog,
	broker *livefeed.Broker,
	limiter *ratelimit.RateLimiter,
) *DiscussionUseCase {
	return &DiscussionUseCase{
		discussionRepo: discussionRepo,
		profiles:       profiles,
		catalog:        catalog,
		broker:         broker,
		limiter:        limiter,
	}
}

type StartDiscussionInput struct {
	Kind      entity.DiscussionKind
	OtherID   string
	ProductID string
}

// StartDiscussion resolves the caller's request to one discussion id, creating
// the discussion on first contact. Safe to call concurrently for the same pair:
// exactly one insert wins, every caller gets the winner's record back.
//
// For marketplace discussions OtherID may be left empty; the product's seller
// is used as the counterpart.
func (uc *DiscussionUseCase) StartDiscussion(ctx context.Context, callerID string, input StartDiscussionInput) (*entity.Discussion, error) {
	if allowed, wait := uc.allow(callerID, ratelimit.ActionStartDiscussion); !allowed {
		logger.Warn("StartDiscussion rate limited: user %s must wait %v", callerID, wait)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before starting another discussion")
	}

	var product *entity.ProductSnapshot
	otherID := input.OtherID

	switch input.Kind {
	case entity.DiscussionDirect:
		if input.ProductID != "" {
			return nil, errors.BadRequest("Direct discussions cannot reference a product", nil)
		}
	case entity.DiscussionMarketplace:
		snapshot, err := uc.catalog.GetProduct(ctx, input.ProductID)
		if err != nil {
			return nil, err
		}
		product = snapshot
		if otherID == "" {
			otherID = product.SellerID
		}
	default:
		return nil, errors.BadRequest("Unknown discussion kind", nil)
	}

	key, err := uc.resolveKey(input.Kind, callerID, otherID, input.ProductID)
	if err != nil {
		return nil, err
	}

	existing, err := uc.discussionRepo.GetByPairKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, "NOT_FOUND") {
		return nil, err
	}

	discussion, err := uc.buildDiscussion(ctx, input.Kind, key, callerID, otherID, product)
	if err != nil {
		return nil, err
	}

	if err := uc.discussionRepo.Create(ctx, discussion); err != nil {
		if errors.Is(err, "CONFLICT") {
			// Another caller won the insert race; the discussion exists now.
			winner, lookupErr := uc.discussionRepo.GetByPairKey(ctx, key)
			if lookupErr != nil {
				logger.Error("StartDiscussion: winner lookup after conflict failed for key %s: %v", key, lookupErr)
				return nil, errors.Internal("Failed to resolve discussion after create conflict", lookupErr)
			}
			return winner, nil
		}
		return nil, err
	}

	logger.Info("StartDiscussion: created discussion %s (%s) for pair %s", discussion.ID, discussion.Kind, key)
	return discussion, nil
}

func (uc *DiscussionUseCase) resolveKey(kind entity.DiscussionKind, a, b, productID string) (string, error) {
	if kind == entity.DiscussionMarketplace {
		return pairkey.Marketplace(productID, a, b)
	}
	return pairkey.Direct(a, b)
}

func (uc *DiscussionUseCase) buildDiscussion(ctx context.Context, kind entity.DiscussionKind, key, callerID, otherID string, product *entity.ProductSnapshot) (*entity.Discussion, error) {
	participants := []string{callerID, otherID}
	if participants[0] > participants[1] {
		participants[0], participants[1] = participants[1], participants[0]
	}

	profiles := make(map[string]entity.ParticipantProfile, 2)
	for _, id := range participants {
		profile, err := uc.profiles.GetProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		profiles[id] = *profile
	}

	discussion := &entity.Discussion{
		Kind:         kind,
		PairKey:      key,
		Participants: participants,
		Profiles:     profiles,
		Unread:       make(map[string]int),
	}
	if product != nil {
		discussion.Product = product
		discussion.ProductID = product.ID
	}
	return discussion, nil
}

// SendMessage validates and appends one message, updates the discussion summary
// as the same logical unit and publishes the result to live subscribers. A
// failed send leaves no trace; fan-out never blocks the caller beyond queueing.
func (uc *DiscussionUseCase) SendMessage(ctx context.Context, discussionID, senderID, body string) (*entity.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.EmptyMessage()
	}

	if allowed, wait := uc.allow(senderID, ratelimit.ActionSendMessage); !allowed {
		logger.Warn("SendMessage rate limited: user %s must wait %v", senderID, wait)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message")
	}

	unlock := uc.sendLocks.lock(discussionID)
	defer unlock()

	discussion, err := uc.discussionRepo.GetByID(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	if !discussion.HasParticipant(senderID) {
		return nil, errors.Forbidden("Sender is not a participant in this discussion", nil)
	}

	message, err := uc.discussionRepo.AppendMessage(ctx, &entity.Message{
		DiscussionID: discussionID,
		SenderID:     senderID,
		Body:         body,
	})
	if err != nil {
		return nil, err
	}

	updated, err := uc.discussionRepo.GetByID(ctx, discussionID)
	if err != nil {
		logger.Error("SendMessage: summary re-read failed for discussion %s: %v", discussionID, err)
		updated = discussion
	}

	uc.broker.Publish(discussionID, livefeed.Event{
		Discussion: updated,
		Message:    message,
	})

	return message, nil
}

// MarkRead zeroes the participant's unread counter. Idempotent: calling it on
// an already-read discussion performs no write.
func (uc *DiscussionUseCase) MarkRead(ctx context.Context, discussionID, participantID string) error {
	discussion, err := uc.discussionRepo.GetByID(ctx, discussionID)
	if err != nil {
		return err
	}
	if !discussion.HasParticipant(participantID) {
		return errors.Forbidden("User is not a participant in this discussion", nil)
	}

	_, err = uc.discussionRepo.ResetUnread(ctx, discussionID, participantID)
	return err
}

// MarkMessageRead flips the informational per-message flag.
func (uc *DiscussionUseCase) MarkMessageRead(ctx context.Context, callerID, discussionID, messageID string) error {
	discussion, err := uc.discussionRepo.GetByID(ctx, discussionID)
	if err != nil {
		return err
	}
	if !discussion.HasParticipant(callerID) {
		return errors.Forbidden("User is not a participant in this discussion", nil)
	}

	return uc.discussionRepo.MarkMessageRead(ctx, discussionID, messageID)
}

func (uc *DiscussionUseCase) GetDiscussion(ctx context.Context, callerID, discussionID string) (*entity.Discussion, error) {
	discussion, err := uc.discussionRepo.GetByID(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	if !discussion.HasParticipant(callerID) {
		return nil, errors.Forbidden("User is not a participant in this discussion", nil)
	}
	return discussion, nil
}

func (uc *DiscussionUseCase) ListDiscussions(ctx context.Context, callerID string, limit, offset int) ([]*entity.Discussion, int64, error) {
	return uc.discussionRepo.ListByParticipant(ctx, callerID, limit, offset)
}

func (uc *DiscussionUseCase) GetMessages(ctx context.Context, callerID, discussionID string, limit, offset int) ([]*entity.Message, int64, error) {
	discussion, err := uc.discussionRepo.GetByID(ctx, discussionID)
	if err != nil {
		return nil, 0, err
	}
	if !discussion.HasParticipant(callerID) {
		return nil, 0, errors.Forbidden("User is not a participant in this discussion", nil)
	}

	return uc.discussionRepo.ListMessages(ctx, discussionID, limit, offset)
}

func (uc *DiscussionUseCase) allow(userID, action string) (bool, interface{}) {
	if uc.limiter == nil {
		return true, nil
	}
	return uc.limiter.Allow(userID, action)
}

// keyedMutex hands out one mutex per discussion id. Entries are retained for
// the process lifetime; the set is bounded by the number of active discussions.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
