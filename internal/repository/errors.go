package repository

import (
	"context"
	"errors"

	"pulse/internal/models"

	"gorm.io/gorm"
)

// storageErr wraps a driver failure. Deadline errors keep their cause so
// callers can tell a slow store from a broken one.
func storageErr(msg string, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &models.AppError{Code: models.CodeConflict, Message: "duplicate record", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewStorageError(msg+": timed out", err)
	}
	return models.NewStorageError(msg, err)
}
