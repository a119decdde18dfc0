package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
	}{
		{NewValidationError("bad"), fiber.StatusBadRequest},
		{NewExpiredError("gone"), fiber.StatusBadRequest},
		{NewNotFoundError("Post", "x"), fiber.StatusNotFound},
		{NewForbiddenError("own post"), fiber.StatusForbidden},
		{NewConflictError("busy"), fiber.StatusConflict},
		{NewStorageError("db down", errors.New("dial")), fiber.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", NewConflictError("busy")), fiber.StatusConflict},
		{errors.New("plain"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestIsCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("outer: %w", NewExpiredError("post expired"))
	assert.True(t, IsCode(err, CodeExpired))
	assert.False(t, IsCode(err, CodeConflict))
	assert.Equal(t, "", ErrorCode(errors.New("x")))
}
