package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pulse/internal/cache"
	"pulse/internal/clock"
	"pulse/internal/lock"
	"pulse/internal/models"
	"pulse/internal/notifications"
	"pulse/internal/observability"
	"pulse/internal/repository"
	"pulse/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const (
	defaultLockWait  = 2 * time.Second
	defaultOpTimeout = 5 * time.Second
	publishTimeout   = time.Second
)

// EventPublisher receives engagement events after a mutation commits.
type EventPublisher interface {
	PublishPostEvent(ctx context.Context, event notifications.PostEvent) error
}

// ReactionResult describes a committed toggle.
type ReactionResult struct {
	Post          *models.Post
	State         models.ReactionState
	Message       string
	LikesCount    int
	DislikesCount int
}

type ReactionConfig struct {
	LockWait  time.Duration
	OpTimeout time.Duration
}

// ReactionService is the reaction engine. Toggles on one post run one at a
// time under the post's lock, and each mutation writes the post and the
// ledger in a single transaction.
type ReactionService struct {
	db              *gorm.DB
	postRepo        repository.PostRepository
	interactionRepo repository.InteractionRepository
	locker          lock.Locker
	events          EventPublisher
	clock           clock.Clock
	lockWait        time.Duration
	opTimeout       time.Duration
}

func NewReactionService(
	db *gorm.DB,
	postRepo repository.PostRepository,
	interactionRepo repository.InteractionRepository,
	locker lock.Locker,
	events EventPublisher,
	clk clock.Clock,
	cfg ReactionConfig,
) *ReactionService {
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	return &ReactionService{
		db:              db,
		postRepo:        postRepo,
		interactionRepo: interactionRepo,
		locker:          locker,
		events:          events,
		clock:           clk,
		lockWait:        cfg.LockWait,
		opTimeout:       cfg.OpTimeout,
	}
}

func (s *ReactionService) ToggleLike(ctx context.Context, postID string, actorID uint, meta models.RequestMeta) (*ReactionResult, error) {
	return s.toggle(ctx, postID, actorID, models.ActionToggleLike, meta)
}

func (s *ReactionService) ToggleDislike(ctx context.Context, postID string, actorID uint, meta models.RequestMeta) (*ReactionResult, error) {
	return s.toggle(ctx, postID, actorID, models.ActionToggleDislike, meta)
}

func (s *ReactionService) toggle(ctx context.Context, postID string, actorID uint, action models.ReactionAction, meta models.RequestMeta) (result *ReactionResult, err error) {
	span, ctx := observability.NewSpan(ctx, "reaction.toggle",
		attribute.String("post.id", postID),
		attribute.String("reaction.action", string(action)),
	)
	defer func() {
		span.SetError(err)
		span.End()
		if err != nil {
			observability.RejectedMutationsTotal.WithLabelValues(string(action), errorLabel(err)).Inc()
		}
	}()

	if actorID == 0 {
		return nil, models.NewUnauthorizedError("actor is required")
	}

	// The caller going away must not abort a half-applied toggle.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	defer cancel()

	if err := s.checkReactable(ctx, postID, actorID); err != nil {
		return nil, err
	}

	unlock, err := s.acquire(ctx, postID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posts := s.postRepo.WithTx(tx)
		ledger := s.interactionRepo.WithTx(tx)

		post, err := posts.GetByID(ctx, postID)
		if err != nil {
			return err
		}
		if err := reactable(post, actorID); err != nil {
			return err
		}

		tr, err := models.NextReaction(post.ReactionOf(actorID), action)
		if err != nil {
			return models.NewValidationError(err.Error())
		}
		if _, err := posts.ApplyReactionDelta(ctx, post, actorID, tr.Delta); err != nil {
			return err
		}

		now := s.clock.Now()
		snap := post.SnapshotAt(now)
		for _, t := range tr.Retract {
			if err := ledger.RetractActive(ctx, actorID, postID, t); err != nil {
				return s.ledgerFailure(ctx, postID, actorID, string(action), err)
			}
		}
		if tr.Record != "" {
			in := models.NewInteraction(actorID, postID, tr.Record, snap, nil, meta)
			in.CreatedAt = now
			if err := ledger.Record(ctx, in); err != nil {
				return s.ledgerFailure(ctx, postID, actorID, string(action), err)
			}
		}

		result = &ReactionResult{
			Post:          post,
			State:         tr.To,
			Message:       tr.Message,
			LikesCount:    post.LikesCount(),
			DislikesCount: post.DislikesCount(),
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to apply reaction")
	}

	observability.ReactionsTotal.WithLabelValues(string(action), string(result.State)).Inc()
	span.AddAttributes(attribute.String("reaction.state", string(result.State)))
	s.afterCommit(ctx, notifications.PostEvent{
		Type:          notifications.EventPostReacted,
		PostID:        postID,
		ActorID:       actorID,
		State:         result.State,
		LikesCount:    result.LikesCount,
		DislikesCount: result.DislikesCount,
		CommentsCount: result.Post.CommentsCount(),
		Topics:        result.Post.TopicList(),
		At:            s.clock.Now(),
	})
	return result, nil
}

// AddComment appends a comment and its ledger record. Owners may comment on
// their own posts. Comments are row inserts, so they skip the post lock.
func (s *ReactionService) AddComment(ctx context.Context, postID string, actorID uint, text string, meta models.RequestMeta) (post *models.Post, err error) {
	span, ctx := observability.NewSpan(ctx, "reaction.comment", attribute.String("post.id", postID))
	defer func() {
		span.SetError(err)
		span.End()
		if err != nil {
			observability.RejectedMutationsTotal.WithLabelValues("comment", errorLabel(err)).Inc()
		}
	}()

	if actorID == 0 {
		return nil, models.NewUnauthorizedError("actor is required")
	}
	text, err = validation.Comment(text)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	defer cancel()

	if _, err := s.livePost(ctx, postID); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posts := s.postRepo.WithTx(tx)
		ledger := s.interactionRepo.WithTx(tx)

		p, err := posts.GetByID(ctx, postID)
		if err != nil {
			return err
		}
		if p.Status == models.PostStatusExpired {
			return models.NewExpiredError("post has expired")
		}
		if _, err := posts.AppendComment(ctx, p, actorID, text); err != nil {
			return err
		}

		now := s.clock.Now()
		in := models.NewInteraction(actorID, postID, models.InteractionComment, p.SnapshotAt(now), &text, meta)
		in.CreatedAt = now
		if err := ledger.Record(ctx, in); err != nil {
			return s.ledgerFailure(ctx, postID, actorID, "comment", err)
		}
		post = p
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to add comment")
	}

	observability.CommentsTotal.Inc()
	s.afterCommit(ctx, notifications.PostEvent{
		Type:          notifications.EventPostCommented,
		PostID:        postID,
		ActorID:       actorID,
		LikesCount:    post.LikesCount(),
		DislikesCount: post.DislikesCount(),
		CommentsCount: post.CommentsCount(),
		Topics:        post.TopicList(),
		At:            s.clock.Now(),
	})
	return post, nil
}

// checkReactable rejects missing, expired and owned posts before any lock or
// transaction is taken.
func (s *ReactionService) checkReactable(ctx context.Context, postID string, actorID uint) error {
	post, err := s.livePost(ctx, postID)
	if err != nil {
		return err
	}
	return reactable(post, actorID)
}

func (s *ReactionService) livePost(ctx context.Context, postID string) (*models.Post, error) {
	if postID == "" {
		return nil, models.NewValidationError("post id is required")
	}
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusExpired {
		return nil, models.NewExpiredError("post has expired")
	}
	return post, nil
}

func reactable(post *models.Post, actorID uint) error {
	if post.Status == models.PostStatusExpired {
		return models.NewExpiredError("post has expired")
	}
	if post.OwnerID == actorID {
		return models.NewForbiddenError("you cannot react to your own post")
	}
	return nil
}

func (s *ReactionService) acquire(ctx context.Context, postID string) (lock.Unlock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	unlock, err := s.locker.Acquire(lockCtx, "post:"+postID)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, &models.AppError{Code: models.CodeConflict, Message: "post is busy, retry", Err: err}
		}
		return nil, models.NewStorageError("failed to lock post", err)
	}
	return unlock, nil
}

// ledgerFailure reports a ledger write that failed after the post mutation.
// Returning it rolls the post mutation back with the transaction.
func (s *ReactionService) ledgerFailure(ctx context.Context, postID string, actorID uint, action string, err error) error {
	observability.LedgerWriteFailures.Inc()
	observability.Logger.ErrorContext(ctx, "ledger write failed, post mutation rolled back",
		slog.String("post_id", postID),
		slog.Uint64("actor_id", uint64(actorID)),
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
	return models.NewStorageError("ledger write failed", err)
}

func (s *ReactionService) afterCommit(ctx context.Context, event notifications.PostEvent) {
	cache.InvalidatePost(ctx, event.PostID)
	if s.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.events.PublishPostEvent(pubCtx, event); err != nil {
		observability.Logger.WarnContext(ctx, "failed to publish post event",
			slog.String("post_id", event.PostID),
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func errorLabel(err error) string {
	if code := models.ErrorCode(err); code != "" {
		return code
	}
	return models.CodeInternal
}

func asAppError(err error, msg string) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return models.NewStorageError(msg, err)
}
