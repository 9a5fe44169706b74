package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/service"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
	"github.com/hcmut-ssps/tutoring-api/pkg/response"
)

// FeedbackHandler exposes feedback, session request and technical report endpoints.
type FeedbackHandler struct {
	feedback *service.FeedbackService
}

// NewFeedbackHandler constructs FeedbackHandler.
func NewFeedbackHandler(feedback *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

// CreateFeedback godoc
// @Summary Rate a completed session
// @Tags Feedback
// @Accept json
// @Produce json
// @Param payload body service.CreateFeedbackRequest true "Feedback payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /feedback [post]
func (h *FeedbackHandler) CreateFeedback(c *gin.Context) {
	var req service.CreateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	feedback, err := h.feedback.CreateFeedback(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, feedback)
}

// CreateSessionRequest godoc
// @Summary Request a new tutoring session
// @Tags Feedback
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequestInput true "Request payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /session-requests [post]
func (h *FeedbackHandler) CreateSessionRequest(c *gin.Context) {
	var input service.CreateSessionRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	request, err := h.feedback.CreateSessionRequest(c.Request.Context(), claims.UserID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// ListSessionRequests godoc
// @Summary List open session requests
// @Tags Feedback
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /session-requests [get]
func (h *FeedbackHandler) ListSessionRequests(c *gin.Context) {
	requests, err := h.feedback.ListSessionRequests(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// CreateTechnicalReport godoc
// @Summary File a technical report
// @Tags Feedback
// @Accept json
// @Produce json
// @Param payload body service.CreateTechnicalReportInput true "Report payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /technical-reports [post]
func (h *FeedbackHandler) CreateTechnicalReport(c *gin.Context) {
	var input service.CreateTechnicalReportInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	report, err := h.feedback.CreateTechnicalReport(c.Request.Context(), claims.UserID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

type updateReportStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateReportStatus godoc
// @Summary Move a technical report along its handling flow
// @Tags Feedback
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body updateReportStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /technical-reports/{id}/status [put]
func (h *FeedbackHandler) UpdateReportStatus(c *gin.Context) {
	var req updateReportStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	report, err := h.feedback.UpdateReportStatus(c.Request.Context(), c.Param("id"), models.ReportStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
