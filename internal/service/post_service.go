// Package service holds the application's business logic.
package service

import (
	"context"
	"time"

	"pulse/internal/clock"
	"pulse/internal/models"
	"pulse/internal/repository"
	"pulse/internal/validation"
)

type PostService struct {
	postRepo        repository.PostRepository
	interactionRepo repository.InteractionRepository
	clock           clock.Clock
	historyLimit    int
}

type CreatePostInput struct {
	OwnerID           uint
	Title             string
	Message           string
	Topics            []string
	ExpirationMinutes int
}

type ListPostsInput struct {
	Topic  string
	Status string
}

func NewPostService(
	postRepo repository.PostRepository,
	interactionRepo repository.InteractionRepository,
	clk clock.Clock,
	historyLimit int,
) *PostService {
	if historyLimit <= 0 {
		historyLimit = repository.DefaultHistoryLimit
	}
	return &PostService{
		postRepo:        postRepo,
		interactionRepo: interactionRepo,
		clock:           clk,
		historyLimit:    historyLimit,
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if in.OwnerID == 0 {
		return nil, models.NewUnauthorizedError("owner is required")
	}
	title, err := validation.Title(in.Title)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	message, err := validation.Message(in.Message)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	topics, err := validation.Topics(in.Topics)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ExpirationMinutes(in.ExpirationMinutes); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	post := &models.Post{
		Title:          title,
		Message:        message,
		OwnerID:        in.OwnerID,
		ExpirationTime: s.clock.Now().Add(time.Duration(in.ExpirationMinutes) * time.Minute),
	}
	for _, t := range topics {
		post.Topics = append(post.Topics, models.PostTopic{Topic: t})
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	var filter models.PostFilter
	if in.Topic != "" {
		t, err := validation.Topic(in.Topic)
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		filter.Topic = &t
	}
	if in.Status != "" {
		st, err := validation.Status(in.Status)
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		filter.Status = &st
	}
	return s.postRepo.List(ctx, filter)
}

func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	if id == "" {
		return nil, models.NewValidationError("post id is required")
	}
	return s.postRepo.GetByID(ctx, id)
}

// UserHistory returns the user's interactions, newest first. A non-positive
// limit uses the configured default.
func (s *PostService) UserHistory(ctx context.Context, userID uint, limit int) ([]models.Interaction, error) {
	if userID == 0 {
		return nil, models.NewUnauthorizedError("user is required")
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	return s.interactionRepo.HistoryForUser(ctx, userID, limit)
}

// PostHistory returns every interaction on an existing post, newest first.
func (s *PostService) PostHistory(ctx context.Context, postID string) ([]models.Interaction, error) {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	return s.interactionRepo.HistoryForPost(ctx, postID)
}
