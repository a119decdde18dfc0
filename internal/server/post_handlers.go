package server

import (
	"pulse/internal/middleware"
	"pulse/internal/models"
	"pulse/internal/service"

	"github.com/gofiber/fiber/v2"
)

// respondError answers with the status the error's kind maps to.
func respondError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.HTTPStatus(err), err)
}

func actorID(c *fiber.Ctx) (uint, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, models.NewUnauthorizedError("Authorization required")
	}
	return id, nil
}

func requestMeta(c *fiber.Ctx) models.RequestMeta {
	return models.RequestMeta{UserAgent: c.Get(fiber.HeaderUserAgent), IPAddress: c.IP()}
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	if err := validateRequest(&req); err != nil {
		return respondError(c, err)
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		OwnerID:           userID,
		Title:             req.Title,
		Message:           req.Message,
		Topics:            req.Topics,
		ExpirationMinutes: req.ExpirationMinutes,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(newPostResponse(post, s.clock.Now()))
}

// ListPosts handles GET /api/posts?topic=&status=
func (s *Server) ListPosts(c *fiber.Ctx) error {
	posts, err := s.postService.ListPosts(c.UserContext(), service.ListPostsInput{
		Topic:  c.Query("topic"),
		Status: c.Query("status"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newPostResponses(posts, s.clock.Now()))
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.postService.GetPost(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newPostResponse(post, s.clock.Now()))
}

// LikePost handles POST /api/posts/:id/like
func (s *Server) LikePost(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return respondError(c, err)
	}
	res, err := s.reactionService.ToggleLike(c.UserContext(), c.Params("id"), userID, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newReactionResponse(res, s.clock.Now()))
}

// DislikePost handles POST /api/posts/:id/dislike
func (s *Server) DislikePost(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return respondError(c, err)
	}
	res, err := s.reactionService.ToggleDislike(c.UserContext(), c.Params("id"), userID, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newReactionResponse(res, s.clock.Now()))
}

// AddComment handles POST /api/posts/:id/comment
func (s *Server) AddComment(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}
	if err := validateRequest(&req); err != nil {
		return respondError(c, err)
	}

	post, err := s.reactionService.AddComment(c.UserContext(), c.Params("id"), userID, req.Text, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":        "Comment added successfully",
		"comments_count": post.CommentsCount(),
		"post":           newPostResponse(post, s.clock.Now()),
	})
}

// MostActivePost handles GET /api/posts/most-active/:topic
func (s *Server) MostActivePost(c *fiber.Ctx) error {
	post, err := s.aggregateService.MostActive(c.UserContext(), c.Params("topic"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"post":               newPostResponse(post, s.clock.Now()),
		"total_interactions": post.TotalInteractions(),
	})
}

// ExpiredPosts handles GET /api/posts/expired and /api/posts/expired/:topic
func (s *Server) ExpiredPosts(c *fiber.Ctx) error {
	posts, err := s.aggregateService.Expired(c.UserContext(), c.Params("topic"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newPostResponses(posts, s.clock.Now()))
}

// MyHistory handles GET /api/posts/interactions/my-history?limit=
func (s *Server) MyHistory(c *fiber.Ctx) error {
	userID, err := actorID(c)
	if err != nil {
		return respondError(c, err)
	}
	history, err := s.postService.UserHistory(c.UserContext(), userID, c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(history)
}

// PostHistory handles GET /api/posts/:id/interactions
func (s *Server) PostHistory(c *fiber.Ctx) error {
	history, err := s.postService.PostHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(history)
}
