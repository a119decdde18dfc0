package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pulse/internal/models"
	"pulse/internal/service"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type createPostRequest struct {
	Title             string   `json:"title" validate:"required"`
	Message           string   `json:"message" validate:"required"`
	Topics            []string `json:"topics" validate:"required,min=1,dive,oneof=Politics Health Sport Tech"`
	ExpirationMinutes int      `json:"expiration_minutes" validate:"required,gte=1"`
}

type commentRequest struct {
	Text string `json:"text" validate:"required,max=1000"`
}

// validateRequest checks request shape. Field rules that depend on trimming
// or the clock live in the service layer.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return models.NewValidationError("Invalid request body")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return models.NewValidationError(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return "topics must be one of: Politics, Health, Sport, Tech"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

type commentResponse struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// PostResponse is the client view of a post. Counts and time_left are
// derived at response time.
type PostResponse struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Message           string            `json:"message"`
	OwnerID           uint              `json:"owner_id"`
	Topics            []models.Topic    `json:"topics"`
	Status            models.PostStatus `json:"status"`
	ExpirationTime    time.Time         `json:"expiration_time"`
	TimeLeftMS        int64             `json:"time_left"`
	Likes             []uint            `json:"likes"`
	Dislikes          []uint            `json:"dislikes"`
	Comments          []commentResponse `json:"comments"`
	LikesCount        int               `json:"likes_count"`
	DislikesCount     int               `json:"dislikes_count"`
	CommentsCount     int               `json:"comments_count"`
	TotalInteractions int               `json:"total_interactions"`
	CreatedAt         time.Time         `json:"created_at"`
}

func newPostResponse(p *models.Post, now time.Time) PostResponse {
	comments := make([]commentResponse, 0, len(p.Comments))
	for _, c := range p.Comments {
		comments = append(comments, commentResponse{ID: c.ID, UserID: c.UserID, Text: c.Text, CreatedAt: c.CreatedAt})
	}
	return PostResponse{
		ID:                p.ID,
		Title:             p.Title,
		Message:           p.Message,
		OwnerID:           p.OwnerID,
		Topics:            p.TopicList(),
		Status:            p.Status,
		ExpirationTime:    p.ExpirationTime,
		TimeLeftMS:        p.TimeLeft(now).Milliseconds(),
		Likes:             p.Likes(),
		Dislikes:          p.Dislikes(),
		Comments:          comments,
		LikesCount:        p.LikesCount(),
		DislikesCount:     p.DislikesCount(),
		CommentsCount:     p.CommentsCount(),
		TotalInteractions: p.TotalInteractions(),
		CreatedAt:         p.CreatedAt,
	}
}

func newPostResponses(posts []*models.Post, now time.Time) []PostResponse {
	out := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, newPostResponse(p, now))
	}
	return out
}

type reactionResponse struct {
	Message       string               `json:"message"`
	State         models.ReactionState `json:"state"`
	LikesCount    int                  `json:"likes_count"`
	DislikesCount int                  `json:"dislikes_count"`
	Post          PostResponse         `json:"post"`
}

func newReactionResponse(r *service.ReactionResult, now time.Time) reactionResponse {
	return reactionResponse{
		Message:       r.Message,
		State:         r.State,
		LikesCount:    r.LikesCount,
		DislikesCount: r.DislikesCount,
		Post:          newPostResponse(r.Post, now),
	}
}
