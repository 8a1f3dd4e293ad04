package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"productimages/internal/archive"
	"productimages/internal/catalog"
	"productimages/internal/codec"
	"productimages/internal/images"
	"productimages/internal/ingest"
	"productimages/internal/jobs"
	"productimages/internal/logger"
	"productimages/internal/models"
	"productimages/internal/queue"
	"productimages/internal/storage"
	"productimages/internal/watermark"
)

const (
	headerActorID   = "X-Actor-Id"
	headerActorName = "X-Actor-Name"
	headerActorType = "X-Actor-Type"
)

var errBadRequest = errors.New("bad request")

// Deps are the collaborators the HTTP layer drives. Publisher may be nil, in
// which case archives are ingested within the request.
type Deps struct {
	Store      *images.Store
	Ingestor   *ingest.Ingestor
	Catalog    catalog.Catalog
	Blobs      storage.Blobs
	Compositor *watermark.Compositor
	Settings   *watermark.SettingsStore
	Tracker    *jobs.Tracker
	Publisher  queue.Publisher
}

type Server struct {
	cfg    *models.Config
	router *gin.Engine
	http   *http.Server
	deps   Deps
	log    *logger.Logger
}

func NewServer(cfg *models.Config, deps Deps, log *logger.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 32 << 20
	r.Static("/files", cfg.StoragePath)

	s := &Server{
		cfg:    cfg,
		router: r,
		http:   &http.Server{Addr: cfg.ServerAddr, Handler: r},
		deps:   deps,
		log:    log.With("component", "server"),
	}
	r.Use(s.requestLogger())

	limit := newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	img := r.Group("/images")
	img.POST("", limit.middleware(), s.handleUpload)
	img.POST("/archive", limit.middleware(), s.handleUploadArchive)
	img.GET("", s.handleListImages)
	img.GET("/stats", s.handleStats)
	img.GET("/:id", s.handleGetImage)
	img.PATCH("/:id", s.handleEditImage)
	img.DELETE("/:id", s.handleDeleteImage)
	img.POST("/:id/approve", s.handleApprove)
	img.POST("/:id/reject", s.handleReject)
	img.POST("/:id/archive", s.handleArchive)
	img.POST("/:id/restore", s.handleRestore)
	img.GET("/:id/watermarked", s.handleWatermarked)

	r.GET("/jobs/:id", s.handleGetJob)

	r.GET("/watermark/settings", s.handleGetSettings)
	r.PUT("/watermark/settings", s.handleUpdateSettings)
	r.POST("/watermark/preview", limit.middleware(), s.handlePreview)

	r.GET("/products", s.handleProducts)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.cfg.ServerAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.Debug("request", "method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status())
	}
}

// actorFrom reads the caller descriptor injected by the fronting layer.
func actorFrom(c *gin.Context) (models.Actor, error) {
	a := models.Actor{
		ID:           strings.TrimSpace(c.GetHeader(headerActorID)),
		DisplayName:  strings.TrimSpace(c.GetHeader(headerActorName)),
		UploaderType: models.UploaderType(strings.ToUpper(strings.TrimSpace(c.GetHeader(headerActorType)))),
	}
	if a.ID == "" {
		return a, fmt.Errorf("%w: missing %s header", errBadRequest, headerActorID)
	}
	if !a.UploaderType.Valid() {
		return a, fmt.Errorf("%w: invalid %s header %q", errBadRequest, headerActorType, a.UploaderType)
	}
	return a, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, ingest.ErrInvalidUploader):
		return http.StatusBadRequest
	case errors.Is(err, images.ErrNotFound), errors.Is(err, jobs.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, images.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, images.ErrConfirmationRequired):
		return http.StatusPreconditionFailed
	case errors.Is(err, codec.ErrInvalidImage), errors.Is(err, archive.ErrArchiveFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "op", op, "error", err)
	}
	c.JSON(status, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
