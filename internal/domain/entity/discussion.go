package entity

import "time"

type DiscussionKind string

const (
	DiscussionDirect      DiscussionKind = "direct"
	DiscussionMarketplace DiscussionKind = "marketplace"
)

// ProductSnapshot is the product data denormalized onto a marketplace discussion
// at creation time. It is never re-synced with the catalog afterwards.
type ProductSnapshot struct {
	ID       string  `json:"id" firestore:"id"`
	Title    string  `json:"title" firestore:"title"`
	ImageURL string  `json:"image_url,omitempty" firestore:"imageUrl,omitempty"`
	Price    float64 `json:"price" firestore:"price"`
	SellerID string  `json:"seller_id" firestore:"sellerId"`
}

// ParticipantProfile is the display snapshot captured from the identity provider
// when a discussion is created.
type ParticipantProfile struct {
	ID        string `json:"id" firestore:"id"`
	Username  string `json:"username" firestore:"username"`
	AvatarURL string `json:"avatar_url,omitempty" firestore:"avatarUrl,omitempty"`
}

type Discussion struct {
	ID           string         `json:"id" firestore:"id"`
	Kind         DiscussionKind `json:"kind" firestore:"kind"`
	PairKey      string         `json:"-" firestore:"pairKey"`
	Participants []string       `json:"participants" firestore:"participants"` // exactly two, sorted ascending
	ProductID    string         `json:"product_id,omitempty" firestore:"productId,omitempty"`

	Product  *ProductSnapshot              `json:"product,omitempty" firestore:"product,omitempty"`
	Profiles map[string]ParticipantProfile `json:"profiles,omitempty" firestore:"profiles,omitempty"`

	LastMessage       string    `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt     time.Time `json:"last_message_at" firestore:"lastMessageAt"`
	LastMessageSender string    `json:"last_message_sender,omitempty" firestore:"lastMessageSender,omitempty"`

	// Unread maps participant id to the number of messages the other party sent
	// since that participant last opened the discussion.
	Unread map[string]int `json:"unread" firestore:"unread"`

	// MessageCount doubles as the sequence counter for message ordering.
	MessageCount int64 `json:"message_count" firestore:"messageCount"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

func (d *Discussion) HasParticipant(participantID string) bool {
	for _, p := range d.Participants {
		if p == participantID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the counterpart of participantID, or "" when
// participantID is not part of the discussion.
func (d *Discussion) OtherParticipant(participantID string) string {
	for _, p := range d.Participants {
		if p != participantID {
			return p
		}
	}
	return ""
}
