package repository

import (
	"context"
	"errors"
	"strings"

	"pulse/internal/clock"
	"pulse/internal/models"
	"pulse/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// InteractionRepository is the Interaction Ledger. Records are immutable;
// reactions may be retracted, comments never are.
type InteractionRepository interface {
	Record(ctx context.Context, interaction *models.Interaction) error
	RetractActive(ctx context.Context, userID uint, postID string, t models.InteractionType) error
	HistoryForUser(ctx context.Context, userID uint, limit int) ([]models.Interaction, error)
	HistoryForPost(ctx context.Context, postID string) ([]models.Interaction, error)
	ActiveReaction(ctx context.Context, userID uint, postID string, t models.InteractionType) (*models.Interaction, error)
	WithTx(tx *gorm.DB) InteractionRepository
}

type interactionRepository struct {
	db    *gorm.DB
	clock clock.Clock
	log   *observability.RepoLogger
}

// NewInteractionRepository creates a new ledger backed by db.
func NewInteractionRepository(db *gorm.DB, clk clock.Clock) InteractionRepository {
	return &interactionRepository{db: db, clock: clk, log: observability.NewRepoLogger("interactions")}
}

func (r *interactionRepository) WithTx(tx *gorm.DB) InteractionRepository {
	return &interactionRepository{db: tx, clock: r.clock, log: r.log}
}

func (r *interactionRepository) Record(ctx context.Context, in *models.Interaction) error {
	switch {
	case in.Type == models.InteractionComment:
		if in.CommentText == nil || strings.TrimSpace(*in.CommentText) == "" {
			return models.NewValidationError("comment interactions require comment text")
		}
		in.ActiveKey = nil
	case in.Type.IsReaction():
		if in.CommentText != nil {
			return models.NewValidationError("reaction interactions cannot carry comment text")
		}
		key := models.ActiveReactionKey(in.UserID, in.PostID, in.Type)
		in.ActiveKey = &key
	default:
		return models.NewValidationError("unknown interaction type")
	}
	if in.TimeLeftAtInteraction < 0 {
		return models.NewValidationError("time left at interaction cannot be negative")
	}
	if in.ID == "" {
		in.ID = uuid.Must(uuid.NewV7()).String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.clock.Now()
	}

	defer observability.TrackQuery("create", "interactions")()
	if err := r.db.WithContext(ctx).Create(in).Error; err != nil {
		r.log.LogError(ctx, err, "record")
		return storageErr("failed to record interaction", err)
	}
	r.log.LogCreate(ctx, map[string]any{"interaction_id": in.ID, "post_id": in.PostID, "type": string(in.Type)})
	return nil
}

func (r *interactionRepository) RetractActive(ctx context.Context, userID uint, postID string, t models.InteractionType) error {
	if !t.IsReaction() {
		return models.NewValidationError("only like and dislike interactions can be retracted")
	}
	err := r.db.WithContext(ctx).
		Where("active_key = ?", models.ActiveReactionKey(userID, postID, t)).
		Delete(&models.Interaction{}).Error
	if err != nil {
		r.log.LogError(ctx, err, "retract")
		return storageErr("failed to retract interaction", err)
	}
	return nil
}

// HistoryForUser returns the user's records newest first. A non-positive limit
// means DefaultHistoryLimit; limits above MaxHistoryLimit are lowered to it.
func (r *interactionRepository) HistoryForUser(ctx context.Context, userID uint, limit int) ([]models.Interaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	var out []models.Interaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		r.log.LogError(ctx, err, "history_user")
		return nil, storageErr("failed to load user history", err)
	}
	return out, nil
}

func (r *interactionRepository) HistoryForPost(ctx context.Context, postID string) ([]models.Interaction, error) {
	var out []models.Interaction
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		r.log.LogError(ctx, err, "history_post")
		return nil, storageErr("failed to load post history", err)
	}
	return out, nil
}

func (r *interactionRepository) ActiveReaction(ctx context.Context, userID uint, postID string, t models.InteractionType) (*models.Interaction, error) {
	if !t.IsReaction() {
		return nil, models.NewValidationError("only like and dislike interactions are active")
	}
	var in models.Interaction
	err := r.db.WithContext(ctx).
		Where("active_key = ?", models.ActiveReactionKey(userID, postID, t)).
		First(&in).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Interaction", models.ActiveReactionKey(userID, postID, t))
		}
		return nil, storageErr("failed to load active reaction", err)
	}
	return &in, nil
}
