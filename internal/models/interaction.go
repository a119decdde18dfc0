package models

import (
	"fmt"
	"time"
)

// InteractionType is the kind of event stored in the ledger.
type InteractionType string

const (
	InteractionLike    InteractionType = "like"
	InteractionDislike InteractionType = "dislike"
	InteractionComment InteractionType = "comment"
)

// IsReaction reports whether t is a toggleable like/dislike.
func (t InteractionType) IsReaction() bool {
	return t == InteractionLike || t == InteractionDislike
}

// Interaction is an immutable audit record of a like, dislike or comment.
type Interaction struct {
	ID                      string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID                  uint            `gorm:"not null;index:idx_interactions_user_created,priority:1" json:"user_id"`
	PostID                  string          `gorm:"type:varchar(36);not null;index:idx_interactions_post_created,priority:1" json:"post_id"`
	Type                    InteractionType `gorm:"size:16;not null;index" json:"type"`
	CommentText             *string         `gorm:"size:1000" json:"comment_text,omitempty"`
	TimeLeftAtInteraction   int64           `gorm:"not null" json:"time_left_at_interaction"`
	PostStatusAtInteraction PostStatus      `gorm:"size:16;not null" json:"post_status_at_interaction"`
	PostTopicsAtInteraction []Topic         `gorm:"serializer:json;type:text" json:"post_topics_at_interaction"`
	UserAgent               string          `gorm:"size:512" json:"user_agent,omitempty"`
	IPAddress               string          `gorm:"size:64" json:"ip_address,omitempty"`
	// ActiveKey is set only for like/dislike records and is unique, so a
	// (user, post, type) triple can hold at most one active record.
	ActiveKey *string   `gorm:"uniqueIndex;size:128" json:"-"`
	CreatedAt time.Time `gorm:"index:idx_interactions_user_created,priority:2;index:idx_interactions_post_created,priority:2" json:"created_at"`
}

// ActiveReactionKey builds the unique key held by an active reaction record.
func ActiveReactionKey(userID uint, postID string, t InteractionType) string {
	return fmt.Sprintf("%d:%s:%s", userID, postID, t)
}

// RequestMeta is optional caller metadata stored on interactions.
type RequestMeta struct {
	UserAgent string
	IPAddress string
}

// NewInteraction builds a ledger record from a post snapshot.
func NewInteraction(userID uint, postID string, t InteractionType, snap Snapshot, commentText *string, meta RequestMeta) *Interaction {
	return &Interaction{
		UserID:                  userID,
		PostID:                  postID,
		Type:                    t,
		CommentText:             commentText,
		TimeLeftAtInteraction:   snap.TimeLeft.Milliseconds(),
		PostStatusAtInteraction: snap.Status,
		PostTopicsAtInteraction: snap.Topics,
		UserAgent:               meta.UserAgent,
		IPAddress:               meta.IPAddress,
	}
}
