package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"productimages/internal/archive"
	"productimages/internal/images"
	"productimages/internal/ingest"
	"productimages/internal/jobs"
	"productimages/internal/models"
)

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleUpload(c *gin.Context) {
	const op = "server.handleUpload"

	actor, err := actorFrom(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		s.fail(c, op, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		s.fail(c, op, fmt.Errorf("%w: no files in field \"files\"", errBadRequest))
		return
	}

	files := make([]ingest.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readFormFile(fh)
		if err != nil {
			s.fail(c, op, err)
			return
		}
		files = append(files, ingest.File{
			Name:        fh.Filename,
			Data:        data,
			ContentType: fh.Header.Get("Content-Type"),
		})
	}

	sum, err := s.deps.Ingestor.IngestFiles(c.Request.Context(), files, ingest.Options{
		Actor:      actor,
		PartNumber: c.PostForm("partNumber"),
	})
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, sum)
}

// handleUploadArchive stages the archive and queues it. Without a queue the
// archive is ingested before responding.
func (s *Server) handleUploadArchive(c *gin.Context) {
	const op = "server.handleUploadArchive"

	actor, err := actorFrom(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	fh, err := c.FormFile("archive")
	if err != nil {
		s.fail(c, op, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	data, err := readFormFile(fh)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	if !archive.LooksLikeArchive(data) {
		s.fail(c, op, fmt.Errorf("%w: %s is not a zip archive", archive.ErrArchiveFormat, fh.Filename))
		return
	}
	partNumber := c.PostForm("partNumber")

	if s.deps.Publisher == nil {
		sum, err := s.deps.Ingestor.IngestArchive(c.Request.Context(), data, ingest.Options{Actor: actor, PartNumber: partNumber})
		if err != nil {
			s.fail(c, op, err)
			return
		}
		c.JSON(http.StatusCreated, sum)
		return
	}

	ctx := c.Request.Context()
	job := s.deps.Tracker.Create(fh.Filename)
	url, err := s.deps.Blobs.Save(ctx, "uploads/"+job.ID+".zip", data)
	if err != nil {
		s.deps.Tracker.Finish(job.ID, ingest.Summary{}, err)
		s.fail(c, op, err)
		return
	}
	msg := jobs.ArchiveJob{ID: job.ID, ArchiveURL: url, Actor: actor, PartNumber: partNumber}
	if err := s.deps.Publisher.Publish(ctx, job.ID, msg); err != nil {
		s.deps.Tracker.Finish(job.ID, ingest.Summary{}, err)
		if delErr := s.deps.Blobs.Delete(ctx, url); delErr != nil {
			s.log.Warn("failed to remove staged archive", "job", job.ID, "error", delErr)
		}
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleGetJob(c *gin.Context) {
	const op = "server.handleGetJob"
	job, err := s.deps.Tracker.Get(c.Param("id"))
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleListImages(c *gin.Context) {
	const op = "server.handleListImages"

	status := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("status", images.StatusAll)))
	if status != images.StatusAll && !models.Status(status).Valid() {
		s.fail(c, op, fmt.Errorf("%w: unknown status %q", errBadRequest, status))
		return
	}
	page := 1
	if raw := c.Query("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			s.fail(c, op, fmt.Errorf("%w: page must be an integer", errBadRequest))
			return
		}
		page = p
	}

	v := images.NewView(s.cfg.Query.PageSize)
	v.SetSearch(c.Query("search"))
	v.SetStatus(status)
	v.SetPage(page)
	c.JSON(http.StatusOK, v.Apply(s.deps.Store.All()))
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Store.Stats())
}

func (s *Server) handleGetImage(c *gin.Context) {
	const op = "server.handleGetImage"
	img, err := s.deps.Store.Get(c.Param("id"))
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, img)
}

type reviewRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

func (s *Server) handleApprove(c *gin.Context) {
	s.review(c, "server.handleApprove", func(c *gin.Context, actor models.Actor, req reviewRequest) (models.ProductImage, error) {
		return s.deps.Store.Approve(c.Request.Context(), c.Param("id"), actor, req.Notes)
	})
}

func (s *Server) handleReject(c *gin.Context) {
	s.review(c, "server.handleReject", func(c *gin.Context, actor models.Actor, req reviewRequest) (models.ProductImage, error) {
		return s.deps.Store.Reject(c.Request.Context(), c.Param("id"), actor, req.Reason)
	})
}

func (s *Server) handleArchive(c *gin.Context) {
	s.review(c, "server.handleArchive", func(c *gin.Context, actor models.Actor, req reviewRequest) (models.ProductImage, error) {
		return s.deps.Store.Archive(c.Request.Context(), c.Param("id"), actor, req.Note)
	})
}

func (s *Server) handleRestore(c *gin.Context) {
	s.review(c, "server.handleRestore", func(c *gin.Context, _ models.Actor, _ reviewRequest) (models.ProductImage, error) {
		return s.deps.Store.Restore(c.Request.Context(), c.Param("id"))
	})
}

func (s *Server) review(c *gin.Context, op string, fn func(*gin.Context, models.Actor, reviewRequest) (models.ProductImage, error)) {
	actor, err := actorFrom(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	var req reviewRequest
	if err := bindOptional(c, &req); err != nil {
		s.fail(c, op, err)
		return
	}
	img, err := fn(c, actor, req)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, img)
}

func (s *Server) handleEditImage(c *gin.Context) {
	const op = "server.handleEditImage"

	var req images.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, op, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	img, err := s.deps.Store.Edit(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, img)
}

func (s *Server) handleDeleteImage(c *gin.Context) {
	const op = "server.handleDeleteImage"

	confirmed, _ := strconv.ParseBool(c.Query("confirm"))
	if err := s.deps.Store.Delete(c.Request.Context(), c.Param("id"), images.Confirmation{Confirmed: confirmed}); err != nil {
		s.fail(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleWatermarked renders the stored image with the active settings. With
// the watermark disabled the stored bytes are served as they are.
func (s *Server) handleWatermarked(c *gin.Context) {
	const op = "server.handleWatermarked"

	ctx := c.Request.Context()
	img, err := s.deps.Store.Get(c.Param("id"))
	if err != nil {
		s.fail(c, op, err)
		return
	}
	data, err := s.deps.Blobs.Open(ctx, img.FileURL)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	settings, err := s.deps.Settings.Get(ctx)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	out, err := s.deps.Compositor.CompositeBytes(ctx, data, settings)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", out)
}
