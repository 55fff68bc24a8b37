package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"version-registry/bundles"
	"version-registry/store"
)

// respondStoreError converts internal errors to user-facing HTTP responses
func respondStoreError(c *gin.Context, err error, operation string) {
	var validationErr *store.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: validationErr.Error(),
		})

		return
	}

	var notFoundErr *store.NotFoundError
	if errors.As(err, &notFoundErr) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Version record not found for " + operation,
		})

		return
	}

	var duplicateErr *store.DuplicateKeyError
	if errors.As(err, &duplicateErr) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Version record already exists for " + operation,
		})

		return
	}

	var storageErr *store.StorageError
	if errors.As(err, &storageErr) {
		log.Error().Err(err).Str("operation", operation).Msg("Storage failure")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Storage unavailable during " + operation,
		})

		return
	}

	log.Error().Err(err).Str("operation", operation).Msg("Unexpected failure")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: "Internal server error during " + operation,
	})
}

// respondBundleError converts bundle backend errors to HTTP responses
func respondBundleError(c *gin.Context, err error, operation string) {
	switch {
	case errors.Is(err, bundles.ErrBundleNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Bundle not found for " + operation,
		})
	case errors.Is(err, bundles.ErrUploadNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Upload not found for " + operation,
		})
	default:
		log.Error().Err(err).Str("operation", operation).Msg("Bundle storage failure")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error during " + operation,
		})
	}
}
