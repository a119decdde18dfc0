package service

import (
	"context"
	"sort"

	"pulse/internal/models"
	"pulse/internal/repository"
	"pulse/internal/validation"
)

// AggregateService derives engagement views from post snapshots. It never
// mutates posts beyond the lazy expiry the store applies on read.
type AggregateService struct {
	postRepo repository.PostRepository
}

func NewAggregateService(postRepo repository.PostRepository) *AggregateService {
	return &AggregateService{postRepo: postRepo}
}

// MostActive returns the live post with the most likes plus dislikes for the
// topic. Ties go to the earliest created post, then the lowest id.
func (s *AggregateService) MostActive(ctx context.Context, topic string) (*models.Post, error) {
	t, err := validation.Topic(topic)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	live := models.PostStatusLive
	posts, err := s.postRepo.List(ctx, models.PostFilter{Topic: &t, Status: &live})
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, &models.AppError{Code: models.CodeNotFound, Message: "no live posts found for topic " + string(t)}
	}

	best := posts[0]
	for _, p := range posts[1:] {
		if moreActive(p, best) {
			best = p
		}
	}
	return best, nil
}

func moreActive(a, b *models.Post) bool {
	if ai, bi := a.TotalInteractions(), b.TotalInteractions(); ai != bi {
		return ai > bi
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Expired lists expired posts, optionally narrowed to one topic, most
// recently expired first.
func (s *AggregateService) Expired(ctx context.Context, topic string) ([]*models.Post, error) {
	expired := models.PostStatusExpired
	filter := models.PostFilter{Status: &expired}
	if topic != "" {
		t, err := validation.Topic(topic)
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		filter.Topic = &t
	}

	posts, err := s.postRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].ExpirationTime.Equal(posts[j].ExpirationTime) {
			return posts[i].ExpirationTime.After(posts[j].ExpirationTime)
		}
		return posts[i].ID < posts[j].ID
	})
	return posts, nil
}
