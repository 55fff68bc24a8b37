package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"version-registry/bundles"
	"version-registry/store"
)

// Server exposes the version registry over HTTP: version metadata from the
// store, bundle bytes from the bundle backend.
type Server struct {
	store   *store.Store
	bundles bundles.Store
	apiKey  string
}

// NewServer creates a new server with the specified store and bundle
// backend
func NewServer(st *store.Store, b bundles.Store, apiKey string) *Server {
	return &Server{
		store:   st,
		bundles: b,
		apiKey:  apiKey,
	}
}

// Router builds the HTTP routing table. Read routes are public; everything
// that writes requires the API key.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	api.GET("/versions", s.recentVersions)
	api.PATCH("/versions/:id", s.requireAPIKey(), s.updateVersion)

	apps := api.Group("/apps/:app")
	apps.GET("/versions", s.listVersions)
	apps.GET("/versions/:version", s.getVersion)
	apps.GET("/platforms/:platform", s.listPlatformVersions)
	apps.GET("/latest/:platform", s.latestVersion)
	apps.GET("/download/:platform/:version", s.downloadVersion)

	apps.POST("/upload", s.requireAPIKey(), s.handleUploadPost)
	apps.PUT("/upload", s.requireAPIKey(), s.handleUploadPut)
	apps.DELETE("/upload", s.requireAPIKey(), s.handleUploadDelete)
	apps.POST("/upload/finish", s.requireAPIKey(), s.finishUpload)
	apps.DELETE("/versions/:version", s.requireAPIKey(), s.deleteVersion)

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}
