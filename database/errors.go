package database

import (
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	apperrors "github.com/kbukum/whisper-subtitle/errors"
)

// IsBusyError reports whether err is SQLite lock contention worth retrying.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "database is locked") || strings.Contains(s, "sqlite_busy")
}

// FromDatabase converts a GORM error into an AppError.
func FromDatabase(err error, resource string) *apperrors.AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NotFound(resource, "")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.Conflict("A " + resource + " with these details already exists.").WithCause(err)
	case IsBusyError(err):
		return apperrors.New(apperrors.ErrCodeDatabaseError, "Database is busy. Please try again.", http.StatusServiceUnavailable).WithCause(err)
	default:
		return apperrors.DatabaseError(err)
	}
}
