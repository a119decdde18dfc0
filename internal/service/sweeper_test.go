package service

import (
	"context"
	"testing"
	"time"

	"pulse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpirySweeper_SweepOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.createPost(t, 1, 1)
	live := f.createPost(t, 1, 30)
	sweeper := NewExpirySweeper(f.posts, f.clock, time.Minute, time.Second)

	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(2 * time.Minute)
	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var stored models.Post
	require.NoError(t, f.db.First(&stored, "id = ?", due.ID).Error)
	assert.Equal(t, models.PostStatusExpired, stored.Status)
	var liveRow models.Post
	require.NoError(t, f.db.First(&liveRow, "id = ?", live.ID).Error)
	assert.Equal(t, models.PostStatusLive, liveRow.Status)

	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "already expired posts are not swept twice")
}

func TestExpirySweeper_RunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	f.createPost(t, 1, 1)
	f.clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewExpirySweeper(f.posts, f.clock, 5*time.Millisecond, time.Second).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		var count int64
		f.db.Model(&models.Post{}).Where("status = ?", models.PostStatusExpired).Count(&count)
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestExpirySweeper_ZeroIntervalDisabled(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	go func() {
		NewExpirySweeper(f.posts, f.clock, 0, 0).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return immediately")
	}
}
