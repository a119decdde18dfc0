// Package server contains the HTTP handlers for the posts API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pulse/internal/cache"
	"pulse/internal/clock"
	"pulse/internal/config"
	"pulse/internal/database"
	"pulse/internal/lock"
	"pulse/internal/middleware"
	"pulse/internal/models"
	"pulse/internal/notifications"
	"pulse/internal/observability"
	"pulse/internal/repository"
	"pulse/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	rateLimiter    *middleware.RateLimiter
	clock          clock.Clock
	shutdownFn     context.CancelFunc

	notifier         *notifications.Notifier
	postService      *service.PostService
	reactionService  *service.ReactionService
	aggregateService *service.AggregateService
	sweeper          *service.ExpirySweeper
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient(), clock.System{})
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// A nil redis client runs the server without caching, events or rate
// limiting, and with in-process post locks.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, clk clock.Clock) (*Server, error) {
	if clk == nil {
		clk = clock.System{}
	}
	middleware.InitMiddleware(cfg)
	cache.SetPostTTL(cfg.PostCacheTTL())

	postRepo := repository.NewPostRepository(db, clk)
	interactionRepo := repository.NewInteractionRepository(db, clk)

	locker, err := newLocker(cfg, redisClient)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("pulse-api"),
		rateLimiter:    middleware.NewRateLimiter(redisClient, cfg.Env),
		clock:          clk,
	}

	var events service.EventPublisher
	if redisClient != nil && cfg.PublishEngagementEvents {
		s.notifier = notifications.NewNotifier(redisClient)
		events = s.notifier
	}

	s.postService = service.NewPostService(postRepo, interactionRepo, clk, cfg.HistoryDefaultLimit)
	s.reactionService = service.NewReactionService(db, postRepo, interactionRepo, locker, events, clk, service.ReactionConfig{
		LockWait:  cfg.LockWaitTimeout(),
		OpTimeout: cfg.StoreOpTimeout(),
	})
	s.aggregateService = service.NewAggregateService(postRepo)
	s.sweeper = service.NewExpirySweeper(postRepo, clk, cfg.ExpirySweepInterval(), cfg.StoreOpTimeout())

	s.app = fiber.New(fiber.Config{
		AppName:      "Pulse API",
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(s.app)
	s.SetupRoutes(s.app)

	return s, nil
}

func newLocker(cfg *config.Config, redisClient *redis.Client) (lock.Locker, error) {
	if cfg.LockBackend != "redis" {
		return lock.NewLocal(), nil
	}
	if redisClient == nil {
		if cfg.IsProduction() {
			return nil, errors.New("LOCK_BACKEND=redis requires a reachable Redis")
		}
		observability.Logger.Warn("redis unavailable, falling back to in-process post locks")
		return lock.NewLocal(), nil
	}
	// The lease must outlive the longest critical section.
	return lock.NewRedis(redisClient, 2*cfg.StoreOpTimeout()), nil
}

// App exposes the configured fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before middlewares that can short-circuit so error responses
	// still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || !s.config.IsProduction()
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	posts := api.Group("/posts", middleware.AuthRequired)

	reactionLimit := s.rateLimiter.Limit(60, time.Minute, middleware.FailOpen, "reactions")

	posts.Post("/", s.rateLimiter.Limit(20, time.Minute, middleware.FailOpen, "create_post"), s.CreatePost)
	posts.Get("/", s.ListPosts)
	posts.Get("/interactions/my-history", s.MyHistory)
	posts.Get("/most-active/:topic", s.MostActivePost)
	posts.Get("/expired", s.ExpiredPosts)
	posts.Get("/expired/:topic", s.ExpiredPosts)
	posts.Get("/:id", s.GetPost)
	posts.Post("/:id/like", reactionLimit, s.LikePost)
	posts.Post("/:id/dislike", reactionLimit, s.DislikePost)
	posts.Post("/:id/comment", reactionLimit, s.AddComment)
	posts.Get("/:id/interactions", s.PostHistory)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   s.clock.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional: without it the API still serves every operation.
	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus == "unhealthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": s.clock.Now(),
	})
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	observability.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// Start runs the background workers and blocks serving HTTP.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownFn = cancel

	go s.sweeper.Run(ctx)

	if s.notifier != nil {
		if err := s.notifier.StartPostSubscriber(ctx, s.logPostEvent); err != nil {
			observability.Logger.Warn("post event subscriber not started", slog.String("error", err.Error()))
		}
	}

	observability.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

func (s *Server) logPostEvent(e notifications.PostEvent) {
	observability.Logger.Debug("post event",
		slog.String("type", string(e.Type)),
		slog.String("post_id", e.PostID),
		slog.Int("likes", e.LikesCount),
		slog.Int("dislikes", e.DislikesCount),
		slog.Int("comments", e.CommentsCount),
	)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	var errs []error
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down HTTP server: %w", err))
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", cerr))
		}
	}
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", rerr))
		}
	}

	observability.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
