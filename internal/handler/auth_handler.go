package handler

import (
	"encoding/xml"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/service"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
	"github.com/hcmut-ssps/tutoring-api/pkg/response"
)

// AuthHandler exposes password login and the simulated campus SSO flow.
type AuthHandler struct {
	auth *service.AuthService
	cas  *service.CASService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *service.AuthService, cas *service.CASService) *AuthHandler {
	return &AuthHandler{auth: auth, cas: cas}
}

// Login godoc
// @Summary Login with username and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Credentials"
// @Success 200 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Me godoc
// @Summary Current user profile
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	info, err := h.auth.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

type casLoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Service  string `json:"service" form:"service"`
}

// CASLogin godoc
// @Summary Simulated CAS primary authentication
// @Description Verifies credentials and redirects to the service with a single-use ticket.
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body casLoginRequest true "Credentials and service URL"
// @Success 200 {object} response.Envelope
// @Router /cas/login [post]
func (h *AuthHandler) CASLogin(c *gin.Context) {
	var req casLoginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	redirect, err := h.cas.Login(c.Request.Context(), req.Username, req.Password, req.Service)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"redirect_url": redirect}, nil)
}

// CAS 2.0 serviceValidate response body.
type casServiceResponse struct {
	XMLName xml.Name           `xml:"cas:serviceResponse"`
	Xmlns   string             `xml:"xmlns:cas,attr"`
	Success *casAuthentication `xml:"cas:authenticationSuccess,omitempty"`
	Failure *casFailure        `xml:"cas:authenticationFailure,omitempty"`
}

type casAuthentication struct {
	User       string        `xml:"cas:user"`
	Attributes casAttributes `xml:"cas:attributes"`
}

type casAttributes struct {
	Email    string `xml:"cas:email"`
	FullName string `xml:"cas:fullName"`
	Role     string `xml:"cas:role"`
}

type casFailure struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// CASServiceValidate godoc
// @Summary CAS 2.0 ticket validation
// @Description Consumes a service ticket and returns the identity as CAS XML. Tickets validate at most once.
// @Tags Auth
// @Produce xml
// @Param ticket query string true "Service ticket"
// @Success 200 {string} string "cas:serviceResponse XML"
// @Router /cas/serviceValidate [get]
func (h *AuthHandler) CASServiceValidate(c *gin.Context) {
	ticket := c.Query("ticket")
	body := casServiceResponse{Xmlns: "http://www.yale.edu/tp/cas"}

	payload, err := h.cas.Validate(c.Request.Context(), ticket)
	if err != nil {
		body.Failure = &casFailure{Code: "INVALID_TICKET", Message: "ticket " + ticket + " not recognized"}
		c.XML(http.StatusOK, body)
		return
	}
	body.Success = &casAuthentication{
		User: payload.Username,
		Attributes: casAttributes{
			Email:    payload.Email,
			FullName: payload.FullName,
			Role:     string(payload.Role),
		},
	}
	c.XML(http.StatusOK, body)
}

// SSOCallback godoc
// @Summary Exchange a validated ticket for an access token
// @Description Consumes the ticket, provisions the local account on first login and returns a JWT.
// @Tags Auth
// @Produce json
// @Param ticket query string true "Service ticket"
// @Success 200 {object} response.Envelope
// @Router /sso/callback [get]
func (h *AuthHandler) SSOCallback(c *gin.Context) {
	ticket := c.Query("ticket")
	if ticket == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "ticket is required"))
		return
	}
	result, err := h.cas.Callback(c.Request.Context(), ticket)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
