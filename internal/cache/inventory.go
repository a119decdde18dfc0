package cache

import (
	"context"
	"fmt"
	"time"
)

const PostKeyPrefix = "post:%s"

var postTTL = 30 * time.Second

// SetPostTTL changes how long post snapshots stay cached. Call it at startup.
func SetPostTTL(d time.Duration) {
	if d > 0 {
		postTTL = d
	}
}

func PostTTL() time.Duration {
	return postTTL
}

func PostKey(postID string) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidatePost(ctx context.Context, postID string) {
	Invalidate(ctx, PostKey(postID))
}
