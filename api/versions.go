package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"version-registry/bundles"
	"version-registry/store"
)

// listVersions returns every published version of an app, grouped per
// version with the platforms it was built for. Versions are ordered most
// recently published first, by record creation order.
func (s *Server) listVersions(c *gin.Context) {
	appName := c.Param("app")

	records, err := s.store.GetVersionsByApp(c.Request.Context(), appName)
	if err != nil {
		respondStoreError(c, err, "listing versions")

		return
	}

	grouped := map[string]*VersionResponse{}
	order := []string{}
	for _, record := range records {
		entry, exists := grouped[record.Version]
		if !exists {
			entry = &VersionResponse{
				AppName:   appName,
				Version:   record.Version,
				Timestamp: record.Timestamp,
			}
			grouped[record.Version] = entry
			order = append(order, record.Version)
		}

		// Keep the newest per-platform timestamp for the version.
		if record.Timestamp > entry.Timestamp {
			entry.Timestamp = record.Timestamp
		}
		entry.Platforms = append(entry.Platforms, record.Platform)
	}

	versions := make([]VersionResponse, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		versions = append(versions, *grouped[order[i]])
	}

	c.JSON(http.StatusOK, VersionListResponse{
		AppName:  appName,
		Versions: versions,
	})
}

// getVersion returns the raw per-platform records for one version
func (s *Server) getVersion(c *gin.Context) {
	appName := c.Param("app")
	version := c.Param("version")

	records, err := s.store.GetVersionsByAppAndVersion(
		c.Request.Context(),
		appName,
		version,
	)
	if err != nil {
		respondStoreError(c, err, "getting version")

		return
	}

	if len(records) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Version not found",
		})

		return
	}

	c.JSON(http.StatusOK, records)
}

// listPlatformVersions returns the version history for an app on one
// platform, oldest first.
func (s *Server) listPlatformVersions(c *gin.Context) {
	appName := c.Param("app")
	platform := c.Param("platform")

	records, err := s.store.GetVersionsByAppAndPlatform(
		c.Request.Context(),
		appName,
		platform,
	)
	if err != nil {
		respondStoreError(c, err, "listing platform versions")

		return
	}

	c.JSON(http.StatusOK, records)
}

// latestVersion returns the most recently published build for an app on a
// platform
func (s *Server) latestVersion(c *gin.Context) {
	appName := c.Param("app")
	platform := c.Param("platform")

	record, err := s.store.GetLatestVersion(
		c.Request.Context(),
		appName,
		platform,
	)
	if err != nil {
		respondStoreError(c, err, "getting latest version")

		return
	}

	c.JSON(http.StatusOK, LatestVersionResponse{
		AppName:   record.AppName,
		Platform:  record.Platform,
		Version:   record.Version,
		Timestamp: record.Timestamp,
	})
}

// downloadVersion streams the release zip for an exact (app, version,
// platform) triple
func (s *Server) downloadVersion(c *gin.Context) {
	appName := c.Param("app")
	platform := c.Param("platform")
	version := c.Param("version")

	record, err := s.store.GetVersion(
		c.Request.Context(),
		appName,
		version,
		platform,
	)
	if err != nil {
		respondStoreError(c, err, "downloading version")

		return
	}

	key := bundles.Key(record.AppName, record.Version, record.Platform)
	body, size, err := s.bundles.GetBundle(c.Request.Context(), key)
	if err != nil {
		respondBundleError(c, err, "downloading version")

		return
	}
	defer func() {
		if cerr := body.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close bundle stream")
		}
	}()

	filename := bundles.Filename(record.AppName, record.Platform, record.Version)
	c.DataFromReader(
		http.StatusOK,
		size,
		"application/zip",
		body,
		map[string]string{
			"Content-Disposition": `attachment; filename="` + filename + `"`,
			"Cache-Control":       "public, max-age=3600",
		},
	)
}

// deleteVersion removes the version's records and their bundles across all
// platforms
func (s *Server) deleteVersion(c *gin.Context) {
	appName := c.Param("app")
	version := c.Param("version")

	records, err := s.store.DeleteVersions(c.Request.Context(), appName, version)
	if err != nil {
		respondStoreError(c, err, "deleting version")

		return
	}

	for _, record := range records {
		key := bundles.Key(record.AppName, record.Version, record.Platform)
		if err := s.bundles.DeleteBundle(c.Request.Context(), key); err != nil {
			if errors.Is(err, bundles.ErrBundleNotFound) {
				log.Warn().
					Str("key", key).
					Msg("No bundle stored for deleted version record")

				continue
			}

			respondBundleError(c, err, "deleting version bundle")

			return
		}
	}

	c.JSON(http.StatusOK, DeleteResponse{
		Success: true,
		Message: "Version deleted successfully",
		AppName: appName,
		Version: version,
	})
}

// updateVersion applies a partial update to one record by id. The store
// refreshes updated_at as part of the write.
func (s *Server) updateVersion(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid record id",
		})

		return
	}

	var req UpdateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body: " + err.Error(),
		})

		return
	}

	record, err := s.store.UpdateVersion(c.Request.Context(), uint(id), store.Patch{
		AppName:   req.AppName,
		Version:   req.Version,
		Platform:  req.Platform,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		respondStoreError(c, err, "updating version record")

		return
	}

	c.JSON(http.StatusOK, record)
}

// recentVersions is the change feed: records created since a given time,
// optionally narrowed to one platform.
func (s *Server) recentVersions(c *gin.Context) {
	sinceParam := c.Query("since")
	platform := c.Query("platform")

	if sinceParam == "" && platform == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "since or platform parameter is required",
		})

		return
	}

	if sinceParam == "" {
		records, err := s.store.GetVersionsByPlatform(
			c.Request.Context(),
			platform,
		)
		if err != nil {
			respondStoreError(c, err, "listing platform records")

			return
		}

		c.JSON(http.StatusOK, records)

		return
	}

	since, err := time.Parse(time.RFC3339, sinceParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "since must be an RFC 3339 timestamp",
		})

		return
	}

	records, err := s.store.GetRecentVersions(c.Request.Context(), since)
	if err != nil {
		respondStoreError(c, err, "listing recent records")

		return
	}

	if platform != "" {
		filtered := records[:0]
		for _, record := range records {
			if record.Platform == platform {
				filtered = append(filtered, record)
			}
		}
		records = filtered
	}

	c.JSON(http.StatusOK, records)
}
