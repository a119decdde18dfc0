// Package notifications publishes post engagement events over Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"pulse/internal/models"
	"pulse/internal/observability"

	"github.com/redis/go-redis/v9"
)

// EventType names an engagement event.
type EventType string

const (
	EventPostReacted   EventType = "post_reacted"
	EventPostCommented EventType = "post_commented"
)

// PostEvent is the payload published after a committed mutation.
type PostEvent struct {
	Type          EventType            `json:"type"`
	PostID        string               `json:"post_id"`
	ActorID       uint                 `json:"actor_id"`
	State         models.ReactionState `json:"state,omitempty"`
	LikesCount    int                  `json:"likes_count"`
	DislikesCount int                  `json:"dislikes_count"`
	CommentsCount int                  `json:"comments_count"`
	Topics        []models.Topic       `json:"topics"`
	At            time.Time            `json:"at"`
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PostChannel derives the Redis channel name for a post.
func PostChannel(postID string) string {
	return "posts:" + postID
}

// PublishPostEvent sends the event to the post's channel.
func (n *Notifier) PublishPostEvent(ctx context.Context, event PostEvent) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.rdb.Publish(ctx, PostChannel(event.PostID), payload).Err()
}

// StartPostSubscriber subscribes to every post channel and calls onEvent for
// each decodable message until ctx ends.
func (n *Notifier) StartPostSubscriber(ctx context.Context, onEvent func(PostEvent)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "posts:*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event PostEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					observability.Logger.Warn("dropping malformed post event",
						slog.String("channel", msg.Channel), slog.String("error", err.Error()))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.Logger.Error("panic in post subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onEvent(event)
				}()
			}
		}
	}()

	return nil
}
