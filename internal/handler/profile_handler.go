package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hcmut-ssps/tutoring-api/internal/service"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
	"github.com/hcmut-ssps/tutoring-api/pkg/response"
)

// ProfileHandler exposes student and tutor profile endpoints.
type ProfileHandler struct {
	students *service.StudentService
	tutors   *service.TutorService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(students *service.StudentService, tutors *service.TutorService) *ProfileHandler {
	return &ProfileHandler{students: students, tutors: tutors}
}

// GetMyStudentProfile godoc
// @Summary The calling student's profile
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/me [get]
func (h *ProfileHandler) GetMyStudentProfile(c *gin.Context) {
	claims := claimsFromContext(c)
	student, err := h.students.GetMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// UpdateMyStudentProfile godoc
// @Summary Update the calling student's profile
// @Tags Profiles
// @Accept json
// @Produce json
// @Param payload body service.UpdateStudentProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/me [put]
func (h *ProfileHandler) UpdateMyStudentProfile(c *gin.Context) {
	var req service.UpdateStudentProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	student, err := h.students.UpdateMine(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// ListStudents godoc
// @Summary List student profiles
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students [get]
func (h *ProfileHandler) ListStudents(c *gin.Context) {
	students, err := h.students.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// CreateStudent godoc
// @Summary Register a student profile for an account
// @Tags Profiles
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /students [post]
func (h *ProfileHandler) CreateStudent(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// GetMyTutorProfile godoc
// @Summary The calling tutor's profile
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /tutors/me [get]
func (h *ProfileHandler) GetMyTutorProfile(c *gin.Context) {
	claims := claimsFromContext(c)
	tutor, err := h.tutors.GetMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tutor, nil)
}

// ListTutors godoc
// @Summary List tutor profiles
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /tutors [get]
func (h *ProfileHandler) ListTutors(c *gin.Context) {
	tutors, err := h.tutors.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tutors, nil)
}

// CreateTutor godoc
// @Summary Register a tutor profile for an account
// @Tags Profiles
// @Accept json
// @Produce json
// @Param payload body service.CreateTutorRequest true "Tutor payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /tutors [post]
func (h *ProfileHandler) CreateTutor(c *gin.Context) {
	var req service.CreateTutorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	tutor, err := h.tutors.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tutor)
}

type setExpertiseRequest struct {
	SubjectIDs []string `json:"subject_ids" binding:"required"`
}

// SetExpertise godoc
// @Summary Replace the calling tutor's subject expertise
// @Tags Profiles
// @Accept json
// @Produce json
// @Param payload body setExpertiseRequest true "Subject IDs"
// @Success 204
// @Security BearerAuth
// @Router /tutors/me/expertise [put]
func (h *ProfileHandler) SetExpertise(c *gin.Context) {
	var req setExpertiseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if err := h.tutors.SetExpertise(c.Request.Context(), claims.UserID, req.SubjectIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSubjects godoc
// @Summary List subjects
// @Tags Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects [get]
func (h *ProfileHandler) ListSubjects(c *gin.Context) {
	subjects, err := h.tutors.ListSubjects(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

type createSubjectRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
}

// CreateSubject godoc
// @Summary Register a subject
// @Tags Profiles
// @Accept json
// @Produce json
// @Param payload body createSubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects [post]
func (h *ProfileHandler) CreateSubject(c *gin.Context) {
	var req createSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	subject, err := h.tutors.CreateSubject(c.Request.Context(), req.Code, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}
