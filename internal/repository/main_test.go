package repository

import (
	"fmt"
	"testing"
	"time"

	"pulse/internal/clock"
	"pulse/internal/database"
	"pulse/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func newPost(owner uint, ttl time.Duration, now time.Time, topics ...models.Topic) *models.Post {
	if len(topics) == 0 {
		topics = []models.Topic{models.TopicTech}
	}
	p := &models.Post{
		Title:          "A post title",
		Message:        "A message long enough",
		OwnerID:        owner,
		ExpirationTime: now.Add(ttl),
	}
	for _, tp := range topics {
		p.Topics = append(p.Topics, models.PostTopic{Topic: tp})
	}
	return p
}

func newFixture(t *testing.T) (*gorm.DB, *clock.Fake, PostRepository, InteractionRepository) {
	t.Helper()
	db := setupTestDB(t)
	clk := clock.NewFake(epoch)
	return db, clk, NewPostRepository(db, clk), NewInteractionRepository(db, clk)
}
