package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pulse/internal/lock"
	"pulse/internal/models"
	"pulse/internal/notifications"
	"pulse/internal/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noMeta = models.RequestMeta{}

func TestToggle_SequencesKeepSetsDisjoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 60)

	steps := []struct {
		user uint
		like bool
	}{
		{2, true}, {3, false}, {2, false}, {4, true}, {3, true}, {2, true},
		{4, true}, {3, false}, {3, false}, {2, false}, {4, false}, {2, true},
	}
	for i, step := range steps {
		var err error
		if step.like {
			_, err = f.reactions.ToggleLike(ctx, p.ID, step.user, noMeta)
		} else {
			_, err = f.reactions.ToggleDislike(ctx, p.ID, step.user, noMeta)
		}
		require.NoError(t, err, "step %d", i)
		f.assertConsistent(t, p.ID, 2, 3, 4)
	}

	got, err := f.posts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, got.Likes())
	assert.Equal(t, []uint{4}, got.Dislikes())
}

func TestToggleLike_TwiceReturnsToNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 60)

	first, err := f.reactions.ToggleLike(ctx, p.ID, 2, noMeta)
	require.NoError(t, err)
	assert.Equal(t, models.StateLiked, first.State)
	assert.Equal(t, "Post liked", first.Message)
	assert.Equal(t, 1, first.LikesCount)

	second, err := f.reactions.ToggleLike(ctx, p.ID, 2, noMeta)
	require.NoError(t, err)
	assert.Equal(t, models.StateNone, second.State)
	assert.Equal(t, "Like removed", second.Message)
	assert.Equal(t, 0, second.LikesCount)

	history, err := f.postSvc.PostHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, countByType(history, 2, models.InteractionLike))
	f.assertConsistent(t, p.ID, 2)
}

func TestToggle_LikeThenDislikeSwitches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 60)

	_, err := f.reactions.ToggleLike(ctx, p.ID, 2, noMeta)
	require.NoError(t, err)
	res, err := f.reactions.ToggleDislike(ctx, p.ID, 2, noMeta)
	require.NoError(t, err)

	assert.Equal(t, models.StateDisliked, res.State)
	assert.Equal(t, "Post disliked", res.Message)
	assert.Equal(t, 0, res.LikesCount)
	assert.Equal(t, 1, res.DislikesCount)

	history, err := f.postSvc.PostHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, countByType(history, 2, models.InteractionLike))
	assert.Equal(t, 1, countByType(history, 2, models.InteractionDislike))

	back, err := f.reactions.ToggleDislike(ctx, p.ID, 2, noMeta)
	require.NoError(t, err)
	assert.Equal(t, models.StateNone, back.State)
	assert.Equal(t, "Dislike removed", back.Message)
}

func TestToggle_SnapshotReflectsCommittedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 10, "Sport", "Health")

	f.clock.Advance(4 * time.Minute)
	_, err := f.reactions.ToggleLike(ctx, p.ID, 2, models.RequestMeta{UserAgent: "ua", IPAddress: "10.0.0.1"})
	require.NoError(t, err)

	in, err := f.ledger.ActiveReaction(ctx, 2, p.ID, models.InteractionLike)
	require.NoError(t, err)
	assert.Equal(t, (6 * time.Minute).Milliseconds(), in.TimeLeftAtInteraction)
	assert.Equal(t, models.PostStatusLive, in.PostStatusAtInteraction)
	assert.Equal(t, []models.Topic{models.TopicHealth, models.TopicSport}, in.PostTopicsAtInteraction)
	assert.Equal(t, "ua", in.UserAgent)
	assert.Equal(t, "10.0.0.1", in.IPAddress)
	assert.True(t, in.CreatedAt.Equal(f.clock.Now()))
}

func TestExpiredPost_RejectsEveryWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 1)

	_, err := f.reactions.ToggleLike(ctx, p.ID, 2, noMeta)
	require.NoError(t, err)

	f.clock.Advance(time.Minute + time.Second)

	got, err := f.postSvc.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusExpired, got.Status)
	assert.Equal(t, time.Duration(0), got.TimeLeft(f.clock.Now()))

	_, err = f.reactions.ToggleLike(ctx, p.ID, 3, noMeta)
	assertCode(t, err, models.CodeExpired)
	_, err = f.reactions.ToggleLike(ctx, p.ID, 2, noMeta)
	assertCode(t, err, models.CodeExpired)
	_, err = f.reactions.ToggleDislike(ctx, p.ID, 3, noMeta)
	assertCode(t, err, models.CodeExpired)
	_, err = f.reactions.AddComment(ctx, p.ID, 3, "too late", noMeta)
	assertCode(t, err, models.CodeExpired)
	_, err = f.reactions.AddComment(ctx, p.ID, 1, "owner too", noMeta)
	assertCode(t, err, models.CodeExpired)

	history, err := f.postSvc.PostHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	after, err := f.posts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, after.Likes())
}

func TestOwner_CannotReactButCanComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 60)

	_, err := f.reactions.ToggleLike(ctx, p.ID, 1, noMeta)
	assertCode(t, err, models.CodeForbidden)
	_, err = f.reactions.ToggleDislike(ctx, p.ID, 1, noMeta)
	assertCode(t, err, models.CodeForbidden)

	post, err := f.reactions.AddComment(ctx, p.ID, 1, "  thanks all  ", noMeta)
	require.NoError(t, err)
	require.Len(t, post.Comments, 1)
	assert.Equal(t, "thanks all", post.Comments[0].Text)

	history, err := f.postSvc.PostHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.InteractionComment, history[0].Type)
	require.NotNil(t, history[0].CommentText)
	assert.Equal(t, "thanks all", *history[0].CommentText)
}

func TestAddComment_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 60)

	_, err := f.reactions.AddComment(ctx, p.ID, 2, "   ", noMeta)
	assertCode(t, err, models.CodeValidation)

	_, err = f.reactions.AddComment(ctx, "missing", 2, "hello", noMeta)
	assertCode(t, err, models.CodeNotFound)

	_, err = f.reactions.AddComment(ctx, p.ID, 0, "hello", noMeta)
	assertCode(t, err, models.CodeUnauthorized)
}

func TestToggle_UnknownPost(t *testing.T) {
	f := newFixture(t)
	_, err := f.reactions.ToggleLike(context.Background(), "nope", 2, noMeta)
	assertCode(t, err, models.CodeNotFound)
}

func TestConcurrentToggles_DistinctUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 60)

	users := []uint{2, 3, 4, 5, 6, 7, 8, 9}
	var wg sync.WaitGroup
	errs := make(chan error, len(users))
	for _, u := range users {
		wg.Add(1)
		go func(u uint) {
			defer wg.Done()
			_, err := f.reactions.ToggleLike(ctx, p.ID, u, noMeta)
			errs <- err
		}(u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.posts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, users, got.Likes())
	assert.Equal(t, int64(len(users)), got.Version)

	history, err := f.postSvc.PostHistory(ctx, p.ID)
	require.NoError(t, err)
	for _, u := range users {
		assert.Equal(t, 1, countByType(history, u, models.InteractionLike), "user %d", u)
	}
}

func TestConcurrentToggles_SameUserSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 60)

	const n = 9
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reactions.ToggleLike(ctx, p.ID, 2, noMeta)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.posts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateLiked, got.ReactionOf(2), "an odd number of toggles ends liked")
	f.assertConsistent(t, p.ID, 2)

	history, err := f.postSvc.PostHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, countByType(history, 2, models.InteractionLike))
}

func TestConcurrentComments_NoneLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 60)

	var wg sync.WaitGroup
	for u := uint(2); u < 12; u++ {
		wg.Add(1)
		go func(u uint) {
			defer wg.Done()
			_, err := f.reactions.AddComment(ctx, p.ID, u, "concurrent", noMeta)
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()

	got, err := f.posts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.CommentsCount())
}

func TestToggle_LedgerFailureRollsBackPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 60)

	broken := NewReactionService(f.db, f.posts, failingLedger{InteractionRepository: f.ledger, err: errors.New("disk full")},
		lock.NewLocal(), f.publisher, f.clock, ReactionConfig{})

	before := testutil.ToFloat64(observability.LedgerWriteFailures)
	_, err := broken.ToggleLike(ctx, p.ID, 2, noMeta)
	assertCode(t, err, models.CodeStorageFailure)
	assert.Contains(t, err.Error(), "ledger write failed")
	assert.Equal(t, before+1, testutil.ToFloat64(observability.LedgerWriteFailures))

	got, err := f.posts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Likes())
	assert.Zero(t, got.Version)
	assert.Empty(t, f.publisher.Events(), "nothing is published for a rolled back mutation")

	_, err = broken.AddComment(ctx, p.ID, 2, "lost", noMeta)
	assertCode(t, err, models.CodeStorageFailure)
	got, err = f.posts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CommentsCount())
}

func TestToggle_LockTimeoutIsConflict(t *testing.T) {
	f := newFixture(t)
	p := f.createPost(t, 1, 60)

	busy := &lockerStub{acquireFn: func(ctx context.Context, _ string) (lock.Unlock, error) {
		<-ctx.Done()
		return nil, lock.ErrTimeout
	}}
	svc := NewReactionService(f.db, f.posts, f.ledger, busy, nil, f.clock, ReactionConfig{LockWait: 10 * time.Millisecond})

	_, err := svc.ToggleLike(context.Background(), p.ID, 2, noMeta)
	assertCode(t, err, models.CodeConflict)

	broken := &lockerStub{acquireFn: func(context.Context, string) (lock.Unlock, error) {
		return nil, errors.New("redis down")
	}}
	svc = NewReactionService(f.db, f.posts, f.ledger, broken, nil, f.clock, ReactionConfig{})
	_, err = svc.ToggleLike(context.Background(), p.ID, 2, noMeta)
	assertCode(t, err, models.CodeStorageFailure)
}

func TestToggle_CallerCancellationDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	p := f.createPost(t, 1, 60)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.reactions.ToggleLike(ctx, p.ID, 2, noMeta)
	require.NoError(t, err)
	assert.Equal(t, models.StateLiked, res.State)
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPost(t, 1, 60, "Politics")

	_, err := f.reactions.ToggleDislike(ctx, p.ID, 2, noMeta)
	require.NoError(t, err)

	f.publisher.err = errors.New("publish failed")
	_, err = f.reactions.AddComment(ctx, p.ID, 3, "hello", noMeta)
	require.NoError(t, err, "publish errors never fail the mutation")

	events := f.publisher.Events()
	require.Len(t, events, 2)
	assert.Equal(t, notifications.EventPostReacted, events[0].Type)
	assert.Equal(t, models.StateDisliked, events[0].State)
	assert.Equal(t, 1, events[0].DislikesCount)
	assert.Equal(t, notifications.EventPostCommented, events[1].Type)
	assert.Equal(t, 1, events[1].CommentsCount)
	assert.Equal(t, []models.Topic{models.TopicPolitics}, events[1].Topics)
}
