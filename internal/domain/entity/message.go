package entity

import "time"

type Message struct {
	ID           string `json:"id" firestore:"id"`
	DiscussionID string `json:"discussion_id" firestore:"discussionId"`
	SenderID     string `json:"sender_id" firestore:"senderId"`
	Body         string `json:"body" firestore:"body"`

	// Seq is store-assigned and strictly increasing per discussion; it breaks
	// ties between messages committed in the same millisecond.
	Seq int64 `json:"seq" firestore:"seq"`

	IsRead    bool      `json:"is_read" firestore:"isRead"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}
