// Command seed fills the database with demo posts and engagement.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"pulse/internal/config"
	"pulse/internal/database"
	"pulse/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of distinct user ids to act as")
	numPosts := flag.Int("posts", 100, "Number of posts to create")
	window := flag.Duration("window", 48*time.Hour, "How far back the simulated timeline starts")
	maxMinutes := flag.Int("max-expiration", 12*60, "Upper bound on post lifetime in minutes")
	seedValue := flag.Int64("seed", 0, "Random seed (0 picks one)")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Printf("Target: %d users, %d posts over %s, clean=%v", *numUsers, *numPosts, *window, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	ctx := context.Background()
	s := seed.NewSeeder(db, seed.Options{
		NumUsers:             *numUsers,
		NumPosts:             *numPosts,
		Window:               *window,
		MaxExpirationMinutes: *maxMinutes,
		Seed:                 *seedValue,
	})

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	sum, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Done: %d posts, %d reactions, %d comments", sum.Posts, sum.Reactions, sum.Comments)
}
