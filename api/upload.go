package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"version-registry/bundles"
)

// handleUploadPost dispatches the POST upload actions: mpu-create starts a
// multipart upload, mpu-complete finishes one from the collected parts.
func (s *Server) handleUploadPost(c *gin.Context) {
	appName := c.Param("app")

	switch action := c.Query("action"); action {
	case "mpu-create":
		version, platform, ok := s.uploadTarget(c)
		if !ok {
			return
		}

		key := bundles.Key(appName, version, platform)
		uploadID, err := s.bundles.CreateUpload(c.Request.Context(), key)
		if err != nil {
			respondBundleError(c, err, "creating multipart upload")

			return
		}

		c.JSON(http.StatusOK, MultipartCreateResponse{
			Key:      key,
			UploadID: uploadID,
		})
	case "mpu-complete":
		version, platform, ok := s.uploadTarget(c)
		if !ok {
			return
		}

		uploadID := c.Query("uploadId")
		if uploadID == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "uploadId parameter is required",
			})

			return
		}

		var body struct {
			Parts []bundles.Part `json:"parts"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid request body: " + err.Error(),
			})

			return
		}

		key := bundles.Key(appName, version, platform)
		etag, err := s.bundles.CompleteUpload(
			c.Request.Context(),
			key,
			uploadID,
			body.Parts,
		)
		if err != nil {
			respondBundleError(c, err, "completing multipart upload")

			return
		}

		c.JSON(http.StatusOK, MultipartCompleteResponse{
			Success: true,
			ETag:    etag,
		})
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown action " + action + " for POST",
		})
	}
}

// handleUploadPut handles the mpu-uploadpart action: one part body per
// request.
func (s *Server) handleUploadPut(c *gin.Context) {
	appName := c.Param("app")

	if action := c.Query("action"); action != "mpu-uploadpart" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown action " + action + " for PUT",
		})

		return
	}

	version, platform, ok := s.uploadTarget(c)
	if !ok {
		return
	}

	uploadID := c.Query("uploadId")
	if uploadID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "uploadId parameter is required",
		})

		return
	}

	partNumber, err := strconv.ParseInt(c.Query("partNumber"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "partNumber parameter is required",
		})

		return
	}

	key := bundles.Key(appName, version, platform)
	part, err := s.bundles.UploadPart(
		c.Request.Context(),
		key,
		uploadID,
		int32(partNumber),
		c.Request.Body,
	)
	if err != nil {
		respondBundleError(c, err, "uploading part")

		return
	}

	c.JSON(http.StatusOK, MultipartPartResponse{
		PartNumber: part.Number,
		ETag:       part.ETag,
	})
}

// handleUploadDelete handles the mpu-abort action
func (s *Server) handleUploadDelete(c *gin.Context) {
	appName := c.Param("app")

	if action := c.Query("action"); action != "mpu-abort" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Unknown action " + action + " for DELETE",
		})

		return
	}

	version, platform, ok := s.uploadTarget(c)
	if !ok {
		return
	}

	uploadID := c.Query("uploadId")
	if uploadID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "uploadId parameter is required",
		})

		return
	}

	key := bundles.Key(appName, version, platform)
	if err := s.bundles.AbortUpload(c.Request.Context(), key, uploadID); err != nil {
		respondBundleError(c, err, "aborting multipart upload")

		return
	}

	c.Status(http.StatusNoContent)
}

// finishUpload records the uploaded version in the store. Publishing the
// same (app, version, platform) twice is a conflict; re-publishing
// requires deleting the version first.
func (s *Server) finishUpload(c *gin.Context) {
	appName := c.Param("app")

	var req CompleteVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body: " + err.Error(),
		})

		return
	}

	timestamp := req.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	record, err := s.store.CreateVersion(
		c.Request.Context(),
		appName,
		req.Version,
		req.Platform,
		timestamp,
	)
	if err != nil {
		respondStoreError(c, err, "recording version")

		return
	}

	log.Info().
		Str("app_name", record.AppName).
		Str("version", record.Version).
		Str("platform", record.Platform).
		Msg("Version upload completed")

	c.JSON(http.StatusOK, CompleteVersionResponse{
		Success:  true,
		Message:  "Version upload completed successfully",
		AppName:  record.AppName,
		Version:  record.Version,
		Platform: record.Platform,
	})
}

// uploadTarget pulls the version and platform query parameters shared by
// all multipart actions.
func (s *Server) uploadTarget(c *gin.Context) (version, platform string, ok bool) {
	version = c.Query("version")
	if version == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "version parameter is required",
		})

		return "", "", false
	}

	platform = c.Query("platform")
	if platform == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "platform parameter is required",
		})

		return "", "", false
	}

	return version, platform, true
}
