package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/service"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
	"github.com/hcmut-ssps/tutoring-api/pkg/response"
)

// ExportHandler exposes roster export endpoints.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

type requestExportRequest struct {
	Format string `json:"format" binding:"required"`
}

// Request godoc
// @Summary Request a roster export for a session
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body requestExportRequest true "Export format (csv or pdf)"
// @Success 202 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id}/exports [post]
func (h *ExportHandler) Request(c *gin.Context) {
	var req requestExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	job, err := h.exports.Request(c.Request.Context(), claims.UserID, c.Param("id"), models.ExportFormat(req.Format))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Export status with a download link once completed
// @Tags Exports
// @Produce json
// @Param id path string true "Export ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	status, err := h.exports.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if status.DownloadURL != "" {
		status.DownloadURL = "/downloads/exports/" + status.DownloadURL
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Stream a roster export by signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /downloads/exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	_, file, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()
	c.FileAttachment(file.Name(), filepath.Base(file.Name()))
}
