package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"productimages/internal/models"
)

func (s *Server) handleGetSettings(c *gin.Context) {
	const op = "server.handleGetSettings"
	settings, err := s.deps.Settings.Get(c.Request.Context())
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	const op = "server.handleUpdateSettings"

	var patch models.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.fail(c, op, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := patch.Validate(); err != nil {
		s.fail(c, op, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	settings, err := s.deps.Settings.Update(c.Request.Context(), patch)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	s.log.Info("watermark settings updated", "enabled", settings.Enabled, "type", settings.Type, "position", settings.Position)
	c.JSON(http.StatusOK, settings)
}

// handlePreview renders an uploaded sample with the active settings plus an
// optional unsaved patch in the "settings" form field. The preview is always
// drawn, even when the saved settings are disabled.
func (s *Server) handlePreview(c *gin.Context) {
	const op = "server.handlePreview"

	ctx := c.Request.Context()
	fh, err := c.FormFile("file")
	if err != nil {
		s.fail(c, op, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	data, err := readFormFile(fh)
	if err != nil {
		s.fail(c, op, err)
		return
	}

	settings, err := s.deps.Settings.Get(ctx)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	if raw := c.PostForm("settings"); raw != "" {
		var patch models.SettingsPatch
		if err := json.Unmarshal([]byte(raw), &patch); err != nil {
			s.fail(c, op, fmt.Errorf("%w: settings: %v", errBadRequest, err))
			return
		}
		if err := patch.Validate(); err != nil {
			s.fail(c, op, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		settings = patch.Apply(settings)
	}

	out, err := s.deps.Compositor.CompositeBytes(ctx, data, settings.WithEnabled(true))
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", out)
}
