// Package models contains data structures for the application's domain models.
package models

import (
	"sort"
	"time"
)

// Topic is one of the fixed post categories.
type Topic string

const (
	TopicPolitics Topic = "Politics"
	TopicHealth   Topic = "Health"
	TopicSport    Topic = "Sport"
	TopicTech     Topic = "Tech"
)

// AllTopics lists every valid topic in display order.
var AllTopics = []Topic{TopicPolitics, TopicHealth, TopicSport, TopicTech}

// Valid reports whether t belongs to the topic enumeration.
func (t Topic) Valid() bool {
	switch t {
	case TopicPolitics, TopicHealth, TopicSport, TopicTech:
		return true
	}
	return false
}

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	PostStatusLive    PostStatus = "Live"
	PostStatusExpired PostStatus = "Expired"
)

// Valid reports whether s is a known status.
func (s PostStatus) Valid() bool {
	return s == PostStatusLive || s == PostStatusExpired
}

// ResolveStatus derives the lifecycle status at now. Expired is terminal:
// once current is Expired it stays Expired regardless of the clock.
func ResolveStatus(expiresAt, now time.Time, current PostStatus) PostStatus {
	if current == PostStatusExpired || now.After(expiresAt) {
		return PostStatusExpired
	}
	return PostStatusLive
}

// Post represents a time-bounded post.
type Post struct {
	ID             string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title          string         `gorm:"size:200;not null" json:"title"`
	Message        string         `gorm:"type:text;not null" json:"message"`
	OwnerID        uint           `gorm:"not null;index" json:"owner_id"`
	ExpirationTime time.Time      `gorm:"not null;index" json:"expiration_time"`
	Status         PostStatus     `gorm:"size:16;not null;default:Live;index" json:"status"`
	Version        int64          `gorm:"not null;default:0" json:"version"`
	Topics         []PostTopic    `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"topics"`
	Reactions      []PostReaction `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"reactions"`
	Comments       []PostComment  `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"comments"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// PostTopic tags a post with one topic.
type PostTopic struct {
	PostID string `gorm:"primaryKey;type:varchar(36)" json:"-"`
	Topic  Topic  `gorm:"primaryKey;size:16;index" json:"topic"`
}

// ReactionKind is the membership a user holds on a post.
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

// PostReaction records that a user likes or dislikes a post. The primary key
// is (post_id, user_id), so one user holds at most one reaction per post.
type PostReaction struct {
	PostID    string       `gorm:"primaryKey;type:varchar(36)" json:"-"`
	UserID    uint         `gorm:"primaryKey" json:"user_id"`
	Kind      ReactionKind `gorm:"size:8;not null" json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
}

// PostComment is one entry of a post's ordered comment sequence.
type PostComment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    string    `gorm:"type:varchar(36);not null;index" json:"-"`
	UserID    uint      `gorm:"not null" json:"user_id"`
	Text      string    `gorm:"size:1000;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TopicList returns the post's topics in enumeration order.
func (p *Post) TopicList() []Topic {
	out := make([]Topic, 0, len(p.Topics))
	for _, t := range p.Topics {
		out = append(out, t.Topic)
	}
	sort.Slice(out, func(i, j int) bool { return topicRank(out[i]) < topicRank(out[j]) })
	return out
}

// HasTopic reports whether the post is tagged with t.
func (p *Post) HasTopic(t Topic) bool {
	for _, pt := range p.Topics {
		if pt.Topic == t {
			return true
		}
	}
	return false
}

func topicRank(t Topic) int {
	for i, at := range AllTopics {
		if at == t {
			return i
		}
	}
	return len(AllTopics)
}

// Likes returns the ids of users who like the post.
func (p *Post) Likes() []uint {
	return p.membersOf(ReactionLike)
}

// Dislikes returns the ids of users who dislike the post.
func (p *Post) Dislikes() []uint {
	return p.membersOf(ReactionDislike)
}

func (p *Post) membersOf(kind ReactionKind) []uint {
	ids := make([]uint, 0, len(p.Reactions))
	for _, r := range p.Reactions {
		if r.Kind == kind {
			ids = append(ids, r.UserID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *Post) LikesCount() int {
	return len(p.Likes())
}

func (p *Post) DislikesCount() int {
	return len(p.Dislikes())
}

func (p *Post) CommentsCount() int {
	return len(p.Comments)
}

// TotalInteractions is likes plus dislikes; comments do not count.
func (p *Post) TotalInteractions() int {
	return p.LikesCount() + p.DislikesCount()
}

// TimeLeft is the remaining lifetime at now, never negative.
func (p *Post) TimeLeft(now time.Time) time.Duration {
	left := p.ExpirationTime.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Resolve applies lazy expiration at now and reports whether the status changed.
func (p *Post) Resolve(now time.Time) bool {
	next := ResolveStatus(p.ExpirationTime, now, p.Status)
	if next == p.Status {
		return false
	}
	p.Status = next
	return true
}

// ReactionOf returns the actor's current reaction state on the post.
func (p *Post) ReactionOf(userID uint) ReactionState {
	for _, r := range p.Reactions {
		if r.UserID != userID {
			continue
		}
		switch r.Kind {
		case ReactionLike:
			return StateLiked
		case ReactionDislike:
			return StateDisliked
		}
	}
	return StateNone
}

// ApplyDelta mutates the in-memory membership to mirror a committed delta.
func (p *Post) ApplyDelta(userID uint, d ReactionDelta, at time.Time) {
	kept := p.Reactions[:0]
	for _, r := range p.Reactions {
		if r.UserID == userID &&
			((r.Kind == ReactionLike && d.RemoveLike) || (r.Kind == ReactionDislike && d.RemoveDislike)) {
			continue
		}
		kept = append(kept, r)
	}
	p.Reactions = kept
	if d.AddLike {
		p.Reactions = append(p.Reactions, PostReaction{PostID: p.ID, UserID: userID, Kind: ReactionLike, CreatedAt: at})
	}
	if d.AddDislike {
		p.Reactions = append(p.Reactions, PostReaction{PostID: p.ID, UserID: userID, Kind: ReactionDislike, CreatedAt: at})
	}
}

// Snapshot captures the post state recorded alongside an interaction.
type Snapshot struct {
	TimeLeft time.Duration
	Status   PostStatus
	Topics   []Topic
}

// SnapshotAt returns the post state at now.
func (p *Post) SnapshotAt(now time.Time) Snapshot {
	return Snapshot{
		TimeLeft: p.TimeLeft(now),
		Status:   p.Status,
		Topics:   p.TopicList(),
	}
}

// PostFilter narrows a post listing.
type PostFilter struct {
	Topic  *Topic
	Status *PostStatus
}
