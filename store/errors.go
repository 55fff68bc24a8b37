package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// StorageError wraps errors coming back from the database engine itself
// (connectivity, disk, statement failures). Never retried at this layer.
type StorageError struct {
	Inner error
}

func (e *StorageError) Error() string {
	return "Storage operation failed: " + e.Inner.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Inner
}

// NotFoundError represents when a version record is not found
type NotFoundError struct {
	Search string
}

func (e *NotFoundError) Error() string {
	return "Record not found for search: " + e.Search
}

// DuplicateKeyError represents a violation of the (app_name, version,
// platform) uniqueness constraint
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return "Duplicate app/version/platform key: " + e.Key
}

// ValidationError represents a required field that is missing or empty
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "Invalid input: " + e.Reason
}

// wrapErrorWithDetails creates a more specific error message
func wrapErrorWithDetails(err error, operation, details string) error {
	if err == nil {
		return nil
	}

	// Handle specific GORM errors with details
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Search: fmt.Sprintf("%s (%s)", operation, details)}
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &DuplicateKeyError{Key: fmt.Sprintf("%s (%s)", operation, details)}
	}

	// For other database errors, wrap with StorageError
	return &StorageError{Inner: fmt.Errorf("%s: %w", operation, err)}
}
