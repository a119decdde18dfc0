// Package validation holds field-level rules for posts and comments.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"pulse/internal/models"
)

const (
	TitleMinLen   = 3
	TitleMaxLen   = 200
	MessageMinLen = 10
	MessageMaxLen = 5000
	CommentMinLen = 1
	CommentMaxLen = 1000

	MinExpirationMinutes = 1
	// MaxExpirationMinutes keeps now+minutes well inside time.Duration range.
	MaxExpirationMinutes = 60 * 24 * 365
)

// Title trims and length-checks a post title.
func Title(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", fmt.Errorf("title is required")
	}
	if n := utf8.RuneCountInString(title); n < TitleMinLen || n > TitleMaxLen {
		return "", fmt.Errorf("title must be between %d and %d characters", TitleMinLen, TitleMaxLen)
	}
	return title, nil
}

// Message trims and length-checks a post body.
func Message(raw string) (string, error) {
	msg := strings.TrimSpace(raw)
	if msg == "" {
		return "", fmt.Errorf("message is required")
	}
	if n := utf8.RuneCountInString(msg); n < MessageMinLen || n > MessageMaxLen {
		return "", fmt.Errorf("message must be between %d and %d characters", MessageMinLen, MessageMaxLen)
	}
	return msg, nil
}

// Comment trims and length-checks comment text.
func Comment(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", fmt.Errorf("comment text is required")
	}
	if utf8.RuneCountInString(text) > CommentMaxLen {
		return "", fmt.Errorf("comment must be between %d and %d characters", CommentMinLen, CommentMaxLen)
	}
	return text, nil
}

// Topic parses a single topic name.
func Topic(raw string) (models.Topic, error) {
	t := models.Topic(strings.TrimSpace(raw))
	if !t.Valid() {
		return "", fmt.Errorf("topic must be one of: Politics, Health, Sport, Tech")
	}
	return t, nil
}

// Topics parses a non-empty topic set, dropping duplicates.
func Topics(raw []string) ([]models.Topic, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}
	seen := make(map[models.Topic]struct{}, len(raw))
	out := make([]models.Topic, 0, len(raw))
	for _, r := range raw {
		t, err := Topic(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// Status parses a lifecycle status filter.
func Status(raw string) (models.PostStatus, error) {
	s := models.PostStatus(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("status must be Live or Expired")
	}
	return s, nil
}

// ExpirationMinutes checks the requested lifetime.
func ExpirationMinutes(minutes int) error {
	if minutes < MinExpirationMinutes {
		return fmt.Errorf("expiration time must be at least %d minute", MinExpirationMinutes)
	}
	if minutes > MaxExpirationMinutes {
		return fmt.Errorf("expiration time cannot exceed %d minutes", MaxExpirationMinutes)
	}
	return nil
}
