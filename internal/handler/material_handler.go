package handler

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/service"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
	"github.com/hcmut-ssps/tutoring-api/pkg/response"
)

// MaterialHandler exposes the shared library endpoints.
type MaterialHandler struct {
	materials   *service.MaterialService
	maxFileSize int64
}

// NewMaterialHandler constructs MaterialHandler.
func NewMaterialHandler(materials *service.MaterialService, maxFileSize int64) *MaterialHandler {
	return &MaterialHandler{materials: materials, maxFileSize: maxFileSize}
}

// List godoc
// @Summary List library materials
// @Tags Library
// @Produce json
// @Param subjectId query string false "Filter by subject"
// @Param type query string false "Filter by type"
// @Param search query string false "Search title"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /materials [get]
func (h *MaterialHandler) List(c *gin.Context) {
	var filter models.MaterialFilter
	filter.SubjectID = c.Query("subjectId")
	filter.Type = models.MaterialType(c.Query("type"))
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	materials, pagination, err := h.materials.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, materials, pagination)
}

// Get godoc
// @Summary Get a material and count the view
// @Tags Library
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /materials/{id} [get]
func (h *MaterialHandler) Get(c *gin.Context) {
	material, err := h.materials.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, material, nil)
}

// Create godoc
// @Summary Add a material
// @Description Multipart form with either a file part or an external_url field.
// @Tags Library
// @Accept mpfd
// @Produce json
// @Param title formData string true "Title"
// @Param subject_id formData string true "Subject ID"
// @Param type formData string true "Material type"
// @Param language formData string true "Language"
// @Param description formData string false "Description"
// @Param external_url formData string false "External URL"
// @Param file formData file false "Uploaded file"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /materials [post]
func (h *MaterialHandler) Create(c *gin.Context) {
	input := service.CreateMaterialInput{
		Title:       c.PostForm("title"),
		SubjectID:   c.PostForm("subject_id"),
		Type:        c.PostForm("type"),
		Description: c.PostForm("description"),
		Language:    c.PostForm("language"),
		ExternalURL: c.PostForm("external_url"),
	}

	if fileHeader, err := c.FormFile("file"); err == nil {
		if h.maxFileSize > 0 && fileHeader.Size > h.maxFileSize {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds the upload limit"))
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
			return
		}
		defer file.Close()
		input.Filename = filepath.Base(fileHeader.Filename)
		input.Upload = file
	}

	material, err := h.materials.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, material)
}

// Delete godoc
// @Summary Deactivate a material
// @Tags Library
// @Produce json
// @Param id path string true "Material ID"
// @Success 204
// @Security BearerAuth
// @Router /materials/{id} [delete]
func (h *MaterialHandler) Delete(c *gin.Context) {
	if err := h.materials.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DownloadURL godoc
// @Summary Signed download link for a stored file
// @Tags Library
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /materials/{id}/download-url [get]
func (h *MaterialHandler) DownloadURL(c *gin.Context) {
	token, expiresAt, err := h.materials.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"download_url": "/downloads/materials/" + token,
		"expires_at":   expiresAt,
	}, nil)
}

// Download godoc
// @Summary Stream a material file by signed token
// @Tags Library
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /downloads/materials/{token} [get]
func (h *MaterialHandler) Download(c *gin.Context) {
	download, err := h.materials.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	filename := filepath.Base(download.File.Name())
	c.FileAttachment(download.File.Name(), filename)
}
