// Auth HTTP handlers.
//
//   - POST /auth/register  (create account)
//   - POST /auth/token     (OAuth2 password form)
//   - POST /auth/login     (JSON credentials)
//   - GET  /auth/me        (current user)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required" example:"tutor@example.com"`
	Password string `json:"password" binding:"required,min=8" example:"correct-horse"`
	// Role is tutor (default), student or parent.
	Role string `json:"role" example:"tutor"`
}

// LoginRequest is the JSON payload of /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"tutor@example.com"`
	Password string `json:"password" binding:"required" example:"correct-horse"`
}

// tokenForm is the OAuth2 password grant form of /auth/token.
type tokenForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// Register godoc
// @ID          register
// @Summary     Register an account
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Credentials"
// @Success     201   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse  "Email already registered"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password (min 8 chars) required")
		return
	}
	u, err := h.svc.Auth.Register(c.Request.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// Token godoc
// @ID          token
// @Summary     Exchange credentials for a bearer token (OAuth2 password form)
// @Tags        Auth
// @Accept      x-www-form-urlencoded
// @Produce     json
// @Param       username  formData  string  true  "E-mail"
// @Param       password  formData  string  true  "Password"
// @Success     200  {object}  services.Token
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/token [post]
func (h *Handlers) Token(c *gin.Context) {
	var form tokenForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password required")
		return
	}
	h.login(c, form.Username, form.Password)
}

// Login godoc
// @ID          login
// @Summary     Exchange credentials for a bearer token
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  services.Token
// @Failure     401   {object}  handlers.ErrorResponse
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	h.login(c, req.Email, req.Password)
}

func (h *Handlers) login(c *gin.Context, email, password string) {
	tok, err := h.svc.Auth.Login(c.Request.Context(), email, password)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, tok)
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.svc.Auth.Me(c.Request.Context(), tutorID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
