// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"time"

	"pulse/internal/cache"
	"pulse/internal/clock"
	"pulse/internal/models"
	"pulse/internal/observability"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// PostRepository is the Post Store. Every read and mutation resolves the
// lifecycle status against the clock first.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context, filter models.PostFilter) ([]*models.Post, error)
	// ApplyReactionDelta updates the actor's membership if post.Version still
	// matches the stored row, then bumps the version.
	ApplyReactionDelta(ctx context.Context, post *models.Post, actorID uint, delta models.ReactionDelta) (*models.Post, error)
	// AppendComment inserts one comment row. The version is left alone since
	// comments never touch membership.
	AppendComment(ctx context.Context, post *models.Post, actorID uint, text string) (*models.Post, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	WithTx(tx *gorm.DB) PostRepository
}

type postRepository struct {
	db     *gorm.DB
	clock  clock.Clock
	inTx   bool
	flight *singleflight.Group
	log    *observability.RepoLogger
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB, clk clock.Clock) PostRepository {
	return &postRepository{
		db:     db,
		clock:  clk,
		flight: &singleflight.Group{},
		log:    observability.NewRepoLogger("posts"),
	}
}

func (r *postRepository) WithTx(tx *gorm.DB) PostRepository {
	return &postRepository{
		db:     tx,
		clock:  r.clock,
		inTx:   true,
		flight: r.flight,
		log:    r.log,
	}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if post.OwnerID == 0 {
		return models.NewValidationError("owner is required")
	}
	if len(post.Topics) == 0 {
		return models.NewValidationError("at least one topic is required")
	}
	if post.ExpirationTime.IsZero() {
		return models.NewValidationError("expiration time is required")
	}

	now := r.clock.Now()
	if post.ID == "" {
		post.ID = uuid.Must(uuid.NewV7()).String()
	}
	for i := range post.Topics {
		post.Topics[i].PostID = post.ID
	}
	post.Status = models.PostStatusLive
	post.Version = 0
	post.CreatedAt = now
	post.UpdatedAt = now

	defer observability.TrackQuery("create", "posts")()
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return storageErr("failed to create post", err)
	}
	r.log.LogCreate(ctx, map[string]any{"post_id": post.ID, "owner_id": post.OwnerID})
	return nil
}

func (r *postRepository) load(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := r.details(r.db.WithContext(ctx)).First(&post, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) details(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Topics").
		Preload("Reactions", func(db *gorm.DB) *gorm.DB { return db.Order("user_id ASC") }).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	var post *models.Post
	var err error

	if r.inTx {
		post, err = r.load(ctx, id)
	} else {
		var v any
		v, err, _ = r.flight.Do(id, func() (any, error) {
			var p models.Post
			fetchErr := cache.Aside(ctx, cache.PostKey(id), &p, cache.PostTTL(), func() error {
				loaded, loadErr := r.load(ctx, id)
				if loadErr != nil {
					return loadErr
				}
				p = *loaded
				return nil
			})
			return &p, fetchErr
		})
		if err == nil {
			post = clonePost(v.(*models.Post))
		}
	}

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		r.log.LogError(ctx, err, "read")
		return nil, storageErr("failed to load post", err)
	}

	if err := r.resolve(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// resolve applies lazy expiration and persists the flip.
func (r *postRepository) resolve(ctx context.Context, post *models.Post) error {
	if !post.Resolve(r.clock.Now()) {
		return nil
	}
	return r.persistExpired(ctx, []string{post.ID}, "read")
}

func (r *postRepository) persistExpired(ctx context.Context, ids []string, source string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id IN ? AND status = ?", ids, models.PostStatusLive).
		Update("status", models.PostStatusExpired)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "expire")
		return storageErr("failed to persist expiry", res.Error)
	}
	if res.RowsAffected > 0 {
		observability.PostsExpiredTotal.WithLabelValues(source).Add(float64(res.RowsAffected))
	}
	for _, id := range ids {
		cache.InvalidatePost(ctx, id)
	}
	return nil
}

func (r *postRepository) List(ctx context.Context, filter models.PostFilter) ([]*models.Post, error) {
	now := r.clock.Now()
	q := r.details(r.db.WithContext(ctx)).Order("created_at DESC, id DESC")

	if filter.Topic != nil {
		q = q.Where("id IN (?)", r.db.Model(&models.PostTopic{}).Select("post_id").Where("topic = ?", *filter.Topic))
	}
	if filter.Status != nil {
		switch *filter.Status {
		case models.PostStatusLive:
			q = q.Where("status = ?", models.PostStatusLive)
		case models.PostStatusExpired:
			q = q.Where("status = ? OR expiration_time < ?", models.PostStatusExpired, now)
		}
	}

	var posts []*models.Post
	defer observability.TrackQuery("list", "posts")()
	if err := q.Find(&posts).Error; err != nil {
		r.log.LogError(ctx, err, "list")
		return nil, storageErr("failed to list posts", err)
	}

	var flipped []string
	out := posts[:0]
	for _, p := range posts {
		if p.Resolve(now) {
			flipped = append(flipped, p.ID)
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, p)
	}
	if len(flipped) > 0 {
		if err := r.persistExpired(ctx, flipped, "read"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *postRepository) ApplyReactionDelta(ctx context.Context, post *models.Post, actorID uint, delta models.ReactionDelta) (*models.Post, error) {
	if !delta.Valid() {
		return nil, models.NewValidationError("reaction delta would place the actor in both likes and dislikes")
	}
	if actorID == post.OwnerID {
		return nil, models.NewConflictError("post owner cannot react to their own post")
	}
	now := r.clock.Now()
	post.Resolve(now)
	if post.Status == models.PostStatusExpired {
		return nil, models.NewExpiredError("post has expired")
	}
	if delta.Empty() {
		return post, nil
	}

	defer observability.TrackQuery("apply_reaction", "posts")()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			"UPDATE posts SET version = version + 1, updated_at = ? WHERE id = ? AND version = ? AND status = ?",
			now, post.ID, post.Version, models.PostStatusLive,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return r.casFailure(tx, post.ID)
		}

		if delta.RemoveLike {
			if err := removeReaction(tx, post.ID, actorID, models.ReactionLike); err != nil {
				return err
			}
		}
		if delta.RemoveDislike {
			if err := removeReaction(tx, post.ID, actorID, models.ReactionDislike); err != nil {
				return err
			}
		}
		if delta.AddLike {
			if err := addReaction(tx, post.ID, actorID, models.ReactionLike, now); err != nil {
				return err
			}
		}
		if delta.AddDislike {
			if err := addReaction(tx, post.ID, actorID, models.ReactionDislike, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		r.log.LogError(ctx, err, "apply_reaction")
		return nil, storageErr("failed to update reactions", err)
	}

	post.Version++
	post.UpdatedAt = now
	post.ApplyDelta(actorID, delta, now)
	r.log.LogUpdate(ctx, map[string]any{"post_id": post.ID, "actor_id": actorID, "version": post.Version})
	return post, nil
}

// casFailure explains why the versioned update matched no row.
func (r *postRepository) casFailure(tx *gorm.DB, id string) error {
	var current models.Post
	err := tx.Select("id", "status", "version").First(&current, "id = ?", id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.NewNotFoundError("Post", id)
	case err != nil:
		return err
	case current.Status == models.PostStatusExpired:
		return models.NewExpiredError("post has expired")
	default:
		return models.NewConflictError("post was modified concurrently, retry")
	}
}

func removeReaction(tx *gorm.DB, postID string, userID uint, kind models.ReactionKind) error {
	return tx.Where("post_id = ? AND user_id = ? AND kind = ?", postID, userID, kind).
		Delete(&models.PostReaction{}).Error
}

func addReaction(tx *gorm.DB, postID string, userID uint, kind models.ReactionKind, at time.Time) error {
	return tx.Create(&models.PostReaction{PostID: postID, UserID: userID, Kind: kind, CreatedAt: at}).Error
}

func (r *postRepository) AppendComment(ctx context.Context, post *models.Post, actorID uint, text string) (*models.Post, error) {
	now := r.clock.Now()
	post.Resolve(now)
	if post.Status == models.PostStatusExpired {
		return nil, models.NewExpiredError("post has expired")
	}

	comment := models.PostComment{PostID: post.ID, UserID: actorID, Text: text, CreatedAt: now}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		return tx.Exec("UPDATE posts SET updated_at = ? WHERE id = ?", now, post.ID).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "append_comment")
		return nil, storageErr("failed to append comment", err)
	}

	post.Comments = append(post.Comments, comment)
	post.UpdatedAt = now
	return post, nil
}

func (r *postRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("status = ? AND expiration_time < ?", models.PostStatusLive, now).
		Pluck("id", &ids).Error
	if err != nil {
		r.log.LogError(ctx, err, "expire_due")
		return 0, storageErr("failed to find due posts", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id IN ? AND status = ?", ids, models.PostStatusLive).
		Update("status", models.PostStatusExpired)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "expire_due")
		return 0, storageErr("failed to expire posts", res.Error)
	}
	observability.PostsExpiredTotal.WithLabelValues("sweep").Add(float64(res.RowsAffected))
	for _, id := range ids {
		cache.InvalidatePost(ctx, id)
	}
	return res.RowsAffected, nil
}

func clonePost(p *models.Post) *models.Post {
	cp := *p
	cp.Topics = append([]models.PostTopic(nil), p.Topics...)
	cp.Reactions = append([]models.PostReaction(nil), p.Reactions...)
	cp.Comments = append([]models.PostComment(nil), p.Comments...)
	return &cp
}
