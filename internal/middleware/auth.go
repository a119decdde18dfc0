// Package middleware provides fiber middleware for authentication, request
// logging, tracing, metrics and rate limiting.
package middleware

import (
	"strconv"
	"strings"

	"pulse/internal/config"
	"pulse/internal/models"
	"pulse/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// AuthRequired enforces a valid bearer token and stores the actor id from
// the token's "sub" claim in c.Locals("userID").
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return unauthorized(c, "Authorization header required")
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return unauthorized(c, "Invalid authorization header format")
	}

	userID, msg := parseSubject(parts[1])
	if msg != "" {
		return unauthorized(c, msg)
	}

	c.Locals("userID", userID)
	c.SetUserContext(observability.WithUserID(c.UserContext(), userID))
	return c.Next()
}

// parseSubject validates the token and returns the user id it names, or a
// client-facing reason for rejecting it.
func parseSubject(tokenString string) (uint, string) {
	if cfg == nil || cfg.JWTSecret == "" {
		return 0, "Authentication is not configured"
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, "Invalid or expired token"
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "Invalid token claims"
	}

	// Extract user ID from "sub" claim (subject claim per RFC 7519)
	subClaim, ok := claims["sub"]
	if !ok {
		return 0, "Invalid token structure - missing subject"
	}
	subStr, ok := subClaim.(string)
	if !ok {
		return 0, "Invalid token subject type"
	}

	userIDVal, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil || userIDVal == 0 {
		return 0, "Invalid user ID in token"
	}
	return uint(userIDVal), ""
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(msg))
}

// UserID returns the authenticated actor stored by AuthRequired.
func UserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("userID").(uint)
	return id, ok && id != 0
}
