package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hcmut-ssps/tutoring-api/internal/service"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
	"github.com/hcmut-ssps/tutoring-api/pkg/response"
)

// EnrollmentHandler exposes the student-side enrollment ledger endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

type enrollRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

type rescheduleRequest struct {
	TargetSessionID string `json:"target_session_id" binding:"required"`
}

// ListMine godoc
// @Summary The calling student's active enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [get]
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	enrollments, err := h.enrollments.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// ListAvailable godoc
// @Summary Sessions the student can still join
// @Tags Enrollments
// @Produce json
// @Param search query string false "Search class code, subject or tutor"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/available [get]
func (h *EnrollmentHandler) ListAvailable(c *gin.Context) {
	claims := claimsFromContext(c)
	sessions, err := h.enrollments.ListAvailable(c.Request.Context(), claims.UserID, c.Query("search"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Enroll godoc
// @Summary Enroll into a session
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body enrollRequest true "Target session"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "CAPACITY_EXCEEDED, ALREADY_ENROLLED or INVALID_STATE"
// @Security BearerAuth
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), claims.UserID, req.SessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Cancel godoc
// @Summary Withdraw from a session
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 204
// @Security BearerAuth
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if err := h.enrollments.Cancel(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reschedule godoc
// @Summary Move an enrollment to another session
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body rescheduleRequest true "Target session"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "SUBJECT_MISMATCH, TUTOR_MISMATCH, CAPACITY_EXCEEDED or INVALID_STATE"
// @Security BearerAuth
// @Router /enrollments/{id}/reschedule [put]
func (h *EnrollmentHandler) Reschedule(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	enrollment, err := h.enrollments.Reschedule(c.Request.Context(), claims.UserID, c.Param("id"), req.TargetSessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// RescheduleTargets godoc
// @Summary Sessions an enrollment can move to
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/reschedule-targets [get]
func (h *EnrollmentHandler) RescheduleTargets(c *gin.Context) {
	claims := claimsFromContext(c)
	targets, err := h.enrollments.ListRescheduleTargets(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, targets, nil)
}
