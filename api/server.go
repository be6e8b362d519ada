// Package api exposes the library and the composite scheduler over HTTP.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"multicam/composite"
	"multicam/export"
	"multicam/library"
	"multicam/prefs"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Server serves the HTTP API.
type Server struct {
	lib      *library.Library
	exporter *export.Exporter
	prefs    prefs.Store
	opts     composite.Options
	log      zerolog.Logger

	thumbs     *library.ThumbnailScheduler
	thumbMu    sync.RWMutex
	thumbCache map[string]library.ThumbnailResult
}

// NewServer creates a server over lib. Plans use opts unless a request
// overrides them.
func NewServer(lib *library.Library, store prefs.Store, opts composite.Options) *Server {
	if store == nil {
		store = prefs.NewMemoryStore()
	}
	return &Server{
		lib:        lib,
		exporter:   export.NewExporter(false),
		prefs:      store,
		opts:       opts,
		log:        zerolog.Nop(),
		thumbCache: make(map[string]library.ThumbnailResult),
	}
}

// SetThumbnailFetcher enables the thumbnail endpoints. Requests are
// debounced by delay per key.
func (s *Server) SetThumbnailFetcher(fetcher library.ThumbnailFetcher, delay time.Duration) *Server {
	if s.thumbs != nil {
		s.thumbs.Close()
	}
	s.thumbs = library.NewThumbnailScheduler(fetcher, s.storeThumbnail).
		SetDelay(delay).
		SetLogger(s.log)
	return s
}

func (s *Server) storeThumbnail(r library.ThumbnailResult) {
	s.thumbMu.Lock()
	defer s.thumbMu.Unlock()
	s.thumbCache[r.Request.Key] = r
}

// Close stops background work.
func (s *Server) Close() {
	if s.thumbs != nil {
		s.thumbs.Close()
	}
}

// SetStrictMode makes playlist exports fail when the composite has gaps.
func (s *Server) SetStrictMode(strict bool) *Server {
	s.exporter = export.NewExporter(strict).SetLogger(s.log)
	return s
}

// SetLogger sets the logger.
func (s *Server) SetLogger(log zerolog.Logger) *Server {
	s.log = log
	s.exporter.SetLogger(log)
	return s
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(s.requestLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(s.errorHandlerMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "multicam",
		})
	})

	v1 := router.Group("/v1")
	{
		v1.GET("/files", s.listFiles)
		v1.POST("/files", s.importFiles)
		v1.DELETE("/files/:id", s.removeFile)

		v1.GET("/tracks", s.listTracks)
		v1.GET("/ranges", s.listRanges)
		v1.GET("/diagnostics", s.listDiagnostics)
		v1.GET("/sessions", s.listSessions)
		v1.GET("/sessions/:idx", s.getSession)
		v1.POST("/sessions/:idx/plan", s.planSession)
		v1.GET("/sessions/:idx/plan.m3u8", s.playlist)
		v1.GET("/sessions/:idx/plan.ffconcat", s.concatList)

		v1.POST("/thumbnails", s.requestThumbnail)
		v1.GET("/thumbnails/:key", s.getThumbnail)

		v1.GET("/prefs/zoom", s.getZoom)
		v1.PUT("/prefs/zoom", s.setZoom)
	}

	return router
}

// requestLogger logs one line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// corsMiddleware allows the editor UI to call the API from another origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// errorHandlerMiddleware turns errors attached to the context into a JSON
// response when the handler has not written one.
func (s *Server) errorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			s.log.Error().Err(err.Err).Str("path", c.Request.URL.Path).Msg("request failed")

			if !c.Writer.Written() {
				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:  "internal server error",
					Detail: err.Error(),
				})
			}
		}
	}
}
