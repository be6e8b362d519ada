package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"multicam/composite"
	"multicam/library"
	"multicam/models"
	"multicam/prefs"
)

// ImportRequest is the body of POST /v1/files.
type ImportRequest struct {
	Paths []string `json:"paths" binding:"required,min=1"`
}

// ZoomRequest is the body of PUT /v1/prefs/zoom.
type ZoomRequest struct {
	Zoom float64 `json:"zoom" binding:"required"`
}

func (s *Server) listFiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"files": s.lib.Files()})
}

func (s *Server) importFiles(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "invalid request body",
			Detail: err.Error(),
		})
		return
	}

	res, err := s.lib.Import(c.Request.Context(), req.Paths)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) removeFile(c *gin.Context) {
	if s.lib.Remove(c.Param("id")) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "file not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listTracks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tracks": s.lib.Tracks()})
}

func (s *Server) listRanges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ranges": s.lib.Ranges()})
}

func (s *Server) listDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"diagnostics": s.lib.Diagnostics()})
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.lib.Sessions()})
}

func (s *Server) getSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session)
}

// planSession schedules a composite. The body may override the default
// options; an empty body uses them as is.
func (s *Server) planSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	opts := s.opts
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:  "invalid options",
				Detail: err.Error(),
			})
			return
		}
	}

	plan, ok := s.plan(c, session, opts)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) playlist(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	plan, ok := s.plan(c, session, s.opts)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := s.exporter.WriteM3U8(&buf, plan); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "export failed", Detail: err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apple.mpegurl", buf.Bytes())
}

func (s *Server) concatList(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	plan, ok := s.plan(c, session, s.opts)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := s.exporter.WriteFFConcat(&buf, plan); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "export failed", Detail: err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

func (s *Server) getZoom(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"zoom": prefs.Zoom(s.prefs)})
}

func (s *Server) setZoom(c *gin.Context) {
	var req ZoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "invalid request body",
			Detail: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"zoom": prefs.SetZoom(s.prefs, req.Zoom)})
}

// session resolves the :idx parameter, writing a 404 when it is unknown.
func (s *Server) session(c *gin.Context) (models.Session, bool) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session index", Detail: err.Error()})
		return models.Session{}, false
	}
	session, ok := s.lib.Session(idx)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return models.Session{}, false
	}
	return session, true
}

// plan schedules session, mapping scheduler precondition failures to 422.
func (s *Server) plan(c *gin.Context, session models.Session, opts composite.Options) (*models.AssemblyPlan, bool) {
	plan, err := composite.NewScheduler().SetOptions(opts).SetLogger(s.log).Plan(session)
	if err == nil {
		return plan, true
	}

	var domainErr *models.Error
	switch {
	case errors.As(err, &domainErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:  "cannot schedule composite",
			Kind:   string(domainErr.Kind),
			Detail: err.Error(),
		})
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid options", Detail: err.Error()})
	}
	return nil, false
}

// ThumbnailRequest is the body of POST /v1/thumbnails.
type ThumbnailRequest struct {
	Key    string  `json:"key" binding:"required"`
	FileID string  `json:"file_id" binding:"required"`
	At     float64 `json:"at"`
}

// requestThumbnail schedules a debounced fetch. The image becomes available
// under GET /v1/thumbnails/:key once rendered.
func (s *Server) requestThumbnail(c *gin.Context) {
	if s.thumbs == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "thumbnails are disabled"})
		return
	}

	var req ThumbnailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "invalid request body",
			Detail: err.Error(),
		})
		return
	}

	file, ok := s.lib.File(req.FileID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "file not found"})
		return
	}

	s.thumbs.Request(library.ThumbnailRequest{Key: req.Key, FileID: file.ID, Path: file.Path, At: req.At})
	c.JSON(http.StatusAccepted, gin.H{"key": req.Key})
}

func (s *Server) getThumbnail(c *gin.Context) {
	s.thumbMu.RLock()
	r, ok := s.thumbCache[c.Param("key")]
	s.thumbMu.RUnlock()

	switch {
	case !ok:
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "thumbnail not ready"})
	case r.Err != nil:
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "thumbnail fetch failed", Detail: r.Err.Error()})
	default:
		c.Data(http.StatusOK, http.DetectContentType(r.Data), r.Data)
	}
}
