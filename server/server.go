// Package server is the HTTP surface around the extraction engine: catalog
// CRUD, per-session CSV uploads, the extraction endpoint, and metrics.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carlodf/harvest/catalog"
	"github.com/carlodf/harvest/engine"
	"github.com/carlodf/harvest/uploads"
)

// DefaultMaxUploadBytes caps uploaded CSV payloads at 10 MiB.
const DefaultMaxUploadBytes = 10 << 20

// SessionHeader carries the upload session id. The upload endpoint mints a
// session when the header is absent and echoes it back; the extraction
// endpoint resolves payloads bound under the same id.
const SessionHeader = "X-Session-Id"

// Server wires the catalog store, upload registry, and engine behind a gin
// router.
type Server struct {
	store     catalog.Store
	uploads   *uploads.Registry
	engine    *engine.Engine
	maxUpload int64
	router    *gin.Engine
}

// Option tweaks Server construction.
type Option func(*Server)

// WithMaxUploadBytes overrides the upload size ceiling.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// New builds a ready-to-serve Server.
func New(store catalog.Store, reg *uploads.Registry, opts ...Option) *Server {
	s := &Server{
		store:     store,
		uploads:   reg,
		engine:    engine.New(store),
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/data-systems", s.createDataSystem)
		api.GET("/data-systems", s.listDataSystems)
		api.GET("/data-systems/:id", s.getDataSystem)
		api.DELETE("/data-systems/:id", s.deleteDataSystem)
		api.GET("/data-systems/:id/data-sources", s.listDataSources)
		api.GET("/data-systems/:id/cross-references", s.listCrossReferences)
		api.GET("/data-systems/:id/data-mappings", s.listDataMappings)
		api.GET("/data-systems/:id/filter-conditions", s.listFilterConditions)
		api.POST("/data-systems/:id/extract", s.extract)

		api.POST("/data-sources", s.createDataSource)
		api.DELETE("/data-sources/:id", s.deleteDataSource)
		api.GET("/data-sources/:id/attributes", s.listAttributes)
		api.POST("/data-sources/:id/upload", s.uploadCSV)

		api.POST("/attributes", s.createAttribute)
		api.DELETE("/attributes/:id", s.deleteAttribute)

		api.POST("/cross-references", s.createCrossReference)
		api.DELETE("/cross-references/:id", s.deleteCrossReference)
		api.GET("/cross-references/:id/mappings", s.listCrossReferenceMappings)

		api.POST("/cross-reference-mappings", s.createCrossReferenceMapping)
		api.DELETE("/cross-reference-mappings/:id", s.deleteCrossReferenceMapping)

		api.POST("/canonicals", s.createCanonical)
		api.GET("/canonicals", s.listCanonicals)
		api.DELETE("/canonicals/:id", s.deleteCanonical)

		api.POST("/data-mappings", s.createDataMapping)
		api.DELETE("/data-mappings/:id", s.deleteDataMapping)

		api.POST("/filter-conditions", s.createFilterCondition)
		api.DELETE("/filter-conditions/:id", s.deleteFilterCondition)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	s.router = r
	return s
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
