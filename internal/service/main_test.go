package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pulse/internal/clock"
	"pulse/internal/database"
	"pulse/internal/lock"
	"pulse/internal/models"
	"pulse/internal/notifications"
	"pulse/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// lockerStub is a stub for lock.Locker.
type lockerStub struct {
	acquireFn func(context.Context, string) (lock.Unlock, error)
}

func (s *lockerStub) Acquire(ctx context.Context, key string) (lock.Unlock, error) {
	return s.acquireFn(ctx, key)
}

// publisherStub records published events.
type publisherStub struct {
	mu     sync.Mutex
	events []notifications.PostEvent
	err    error
}

func (p *publisherStub) PublishPostEvent(_ context.Context, e notifications.PostEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *publisherStub) Events() []notifications.PostEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notifications.PostEvent(nil), p.events...)
}

// failingLedger records nothing and fails every append.
type failingLedger struct {
	repository.InteractionRepository
	err error
}

func (f failingLedger) Record(context.Context, *models.Interaction) error {
	return f.err
}

func (f failingLedger) WithTx(tx *gorm.DB) repository.InteractionRepository {
	return failingLedger{InteractionRepository: f.InteractionRepository.WithTx(tx), err: f.err}
}

type fixture struct {
	db        *gorm.DB
	clock     *clock.Fake
	posts     repository.PostRepository
	ledger    repository.InteractionRepository
	publisher *publisherStub
	reactions *ReactionService
	postSvc   *PostService
	aggregate *AggregateService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	clk := clock.NewFake(epoch)
	posts := repository.NewPostRepository(db, clk)
	ledger := repository.NewInteractionRepository(db, clk)
	pub := &publisherStub{}

	return &fixture{
		db:        db,
		clock:     clk,
		posts:     posts,
		ledger:    ledger,
		publisher: pub,
		reactions: NewReactionService(db, posts, ledger, lock.NewLocal(), pub, clk, ReactionConfig{
			LockWait:  10 * time.Second,
			OpTimeout: 10 * time.Second,
		}),
		postSvc:   NewPostService(posts, ledger, clk, 50),
		aggregate: NewAggregateService(posts),
	}
}

func (f *fixture) createPost(t *testing.T, owner uint, minutes int, topics ...string) *models.Post {
	t.Helper()
	if len(topics) == 0 {
		topics = []string{"Tech"}
	}
	p, err := f.postSvc.CreatePost(context.Background(), CreatePostInput{
		OwnerID:           owner,
		Title:             "Post title",
		Message:           "This message is long enough",
		Topics:            topics,
		ExpirationMinutes: minutes,
	})
	require.NoError(t, err)
	return p
}

// assertConsistent checks the post's membership against the ledger's
// active records.
func (f *fixture) assertConsistent(t *testing.T, postID string, users ...uint) {
	t.Helper()
	ctx := context.Background()
	p, err := f.posts.GetByID(ctx, postID)
	require.NoError(t, err)

	likes := map[uint]bool{}
	for _, id := range p.Likes() {
		likes[id] = true
	}
	for _, id := range p.Dislikes() {
		assert.False(t, likes[id], "user %d is in both likes and dislikes", id)
	}

	for _, u := range users {
		_, likeErr := f.ledger.ActiveReaction(ctx, u, postID, models.InteractionLike)
		_, dislikeErr := f.ledger.ActiveReaction(ctx, u, postID, models.InteractionDislike)
		switch p.ReactionOf(u) {
		case models.StateLiked:
			assert.NoError(t, likeErr)
			assert.True(t, models.IsCode(dislikeErr, models.CodeNotFound))
		case models.StateDisliked:
			assert.True(t, models.IsCode(likeErr, models.CodeNotFound))
			assert.NoError(t, dislikeErr)
		default:
			assert.True(t, models.IsCode(likeErr, models.CodeNotFound))
			assert.True(t, models.IsCode(dislikeErr, models.CodeNotFound))
		}
	}
}

// assertCode asserts that err is an AppError with the given code.
func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

func countByType(history []models.Interaction, userID uint, typ models.InteractionType) int {
	n := 0
	for _, in := range history {
		if in.UserID == userID && in.Type == typ {
			n++
		}
	}
	return n
}
