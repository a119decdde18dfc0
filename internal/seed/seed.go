// Package seed populates the database with demo posts and engagement for
// development. Every write goes through the services, so the ledger stays
// consistent with post state.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pulse/internal/clock"
	"pulse/internal/lock"
	"pulse/internal/models"
	"pulse/internal/observability"
	"pulse/internal/repository"
	"pulse/internal/service"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers int
	NumPosts int
	// Window is how far back the simulated timeline starts. Posts whose
	// deadline falls before now read as Expired.
	Window time.Duration
	// MaxExpirationMinutes bounds each post's lifetime.
	MaxExpirationMinutes int
	Seed                 int64
}

func (o Options) withDefaults() Options {
	if o.NumUsers < 2 {
		o.NumUsers = 2
	}
	if o.Window <= 0 {
		o.Window = 48 * time.Hour
	}
	if o.MaxExpirationMinutes <= 0 {
		o.MaxExpirationMinutes = 12 * 60
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return o
}

// Summary counts what a run produced.
type Summary struct {
	Posts     int
	Reactions int
	Comments  int
}

type Seeder struct {
	db        *gorm.DB
	opts      Options
	clock     *clock.Fake
	factory   *Factory
	posts     *service.PostService
	reactions *service.ReactionService
}

// NewSeeder wires services over db with a simulated clock that starts
// opts.Window before now.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	opts = opts.withDefaults()
	clk := clock.NewFake(clock.System{}.Now().Add(-opts.Window))

	postRepo := repository.NewPostRepository(db, clk)
	interactionRepo := repository.NewInteractionRepository(db, clk)

	return &Seeder{
		db:        db,
		opts:      opts,
		clock:     clk,
		factory:   NewFactory(opts.Seed),
		posts:     service.NewPostService(postRepo, interactionRepo, clk, 0),
		reactions: service.NewReactionService(db, postRepo, interactionRepo, lock.NewLocal(), nil, clk, service.ReactionConfig{}),
	}
}

// ClearAll removes every post and interaction.
func (s *Seeder) ClearAll(ctx context.Context) error {
	tables := []any{&models.Interaction{}, &models.PostComment{}, &models.PostReaction{}, &models.PostTopic{}, &models.Post{}}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tables {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(t).Error; err != nil {
				return fmt.Errorf("clear %T: %w", t, err)
			}
		}
		return nil
	})
}

// Run creates NumPosts posts spread over the window, each followed by a
// burst of reactions and comments from random users.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if s.opts.NumPosts <= 0 {
		return sum, nil
	}
	step := s.opts.Window / time.Duration(s.opts.NumPosts)
	start := s.clock.Now()

	for i := 0; i < s.opts.NumPosts; i++ {
		if at := start.Add(time.Duration(i) * step); at.After(s.clock.Now()) {
			s.clock.Set(at)
		}

		owner := uint(s.factory.faker.Number(1, s.opts.NumUsers))
		post, err := s.posts.CreatePost(ctx, s.factory.PostInput(owner, s.opts.MaxExpirationMinutes))
		if err != nil {
			return sum, fmt.Errorf("create post %d: %w", i, err)
		}
		sum.Posts++

		r, c, err := s.engage(ctx, post)
		if err != nil {
			return sum, fmt.Errorf("engage post %s: %w", post.ID, err)
		}
		sum.Reactions += r
		sum.Comments += c
	}

	observability.Logger.InfoContext(ctx, "seed complete",
		slog.Int("posts", sum.Posts),
		slog.Int("reactions", sum.Reactions),
		slog.Int("comments", sum.Comments),
	)
	return sum, nil
}

// engage applies random toggles and comments while the post is still live.
func (s *Seeder) engage(ctx context.Context, post *models.Post) (reactions, comments int, err error) {
	actions := s.factory.faker.Number(0, 3*s.opts.NumUsers)
	for j := 0; j < actions; j++ {
		s.clock.Advance(time.Duration(s.factory.faker.Number(1, 30)) * time.Second)
		if !s.clock.Now().Before(post.ExpirationTime) {
			return reactions, comments, nil
		}

		actor := s.factory.Pick(s.opts.NumUsers, post.OwnerID)
		switch {
		case s.factory.Chance(0.2):
			if _, err := s.reactions.AddComment(ctx, post.ID, actor, s.factory.Comment(), models.RequestMeta{UserAgent: "seed"}); err != nil {
				return reactions, comments, err
			}
			comments++
		case actor == post.OwnerID:
			// Owners cannot react to their own posts.
		case s.factory.Chance(0.7):
			if _, err := s.reactions.ToggleLike(ctx, post.ID, actor, models.RequestMeta{UserAgent: "seed"}); err != nil {
				return reactions, comments, err
			}
			reactions++
		default:
			if _, err := s.reactions.ToggleDislike(ctx, post.ID, actor, models.RequestMeta{UserAgent: "seed"}); err != nil {
				return reactions, comments, err
			}
			reactions++
		}
	}
	return reactions, comments, nil
}
