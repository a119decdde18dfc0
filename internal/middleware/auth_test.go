package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"pulse/internal/config"
	"pulse/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func signToken(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestAuthRequired(t *testing.T) {
	InitMiddleware(&config.Config{JWTSecret: testSecret})

	app := fiber.New()
	app.Get("/test", AuthRequired, func(c *fiber.Ctx) error {
		userID, _ := UserID(c)
		ctxUser, _ := c.UserContext().Value(observability.UserIDKey).(uint)
		return c.JSON(fiber.Map{"userID": userID, "ctxUser": ctxUser})
	})

	generateToken := func(sub any, exp time.Duration) string {
		return signToken(t, jwt.MapClaims{
			"sub": sub,
			"exp": time.Now().Add(exp).Unix(),
		}, jwt.SigningMethodHS256, []byte(testSecret))
	}

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedUserID uint
	}{
		{"Happy Path", "Bearer " + generateToken(strconv.Itoa(123), time.Hour), http.StatusOK, 123},
		{"Missing Header", "", http.StatusUnauthorized, 0},
		{"Invalid Format", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, 0},
		{"Malformed Token", "Bearer malformed.token.here", http.StatusUnauthorized, 0},
		{"Expired Token", "Bearer " + generateToken("123", -time.Hour), http.StatusUnauthorized, 0},
		{"Numeric Subject", "Bearer " + generateToken(123, time.Hour), http.StatusUnauthorized, 0},
		{"Zero Subject", "Bearer " + generateToken("0", time.Hour), http.StatusUnauthorized, 0},
		{"Missing Subject", "Bearer " + signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testSecret)), http.StatusUnauthorized, 0},
		{"Wrong Secret", "Bearer " + signToken(t, jwt.MapClaims{"sub": "123"}, jwt.SigningMethodHS256, []byte("another-secret")), http.StatusUnauthorized, 0},
		{"Unsigned Token", "Bearer " + signToken(t, jwt.MapClaims{"sub": "123"}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType), http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, float64(tt.expectedUserID), body["userID"])
				assert.Equal(t, float64(tt.expectedUserID), body["ctxUser"])
			} else {
				assert.Equal(t, "UNAUTHORIZED", body["code"])
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}
