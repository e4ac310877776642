// Student profile HTTP handlers.
//
//   - GET  /students/{id}/bio
//   - PUT  /students/{id}/bio     (partial: omitted fields are kept)
//   - POST /students/{id}/avatar
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/services"
)

// UpdateBioRequest is the JSON payload of a bio update. Omitted fields keep
// their value; an empty string clears a text field.
type UpdateBioRequest struct {
	// StartedAt is a calendar date (YYYY-MM-DD).
	StartedAt  *string `json:"started_at" example:"2024-09-01"`
	Goals      *string `json:"goals" example:"Pass the state exam"`
	Strengths  *string `json:"strengths"`
	Weaknesses *string `json:"weaknesses"`
	Notes      *string `json:"notes"`
}

// SetAvatarRequest selects an avatar theme.
type SetAvatarRequest struct {
	AvatarTheme string `json:"avatar_theme_code" binding:"required" example:"mage"`
}

// GetBio godoc
// @ID          getStudentBio
// @Summary     Get a student's bio
// @Tags        Students
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Student ID"  format(uuid)
// @Success     200  {object}  domain.StudentBio
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /students/{id}/bio [get]
func (h *Handlers) GetBio(c *gin.Context) {
	b, err := h.svc.Profiles.Bio(c.Request.Context(), tutorID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// UpdateBio godoc
// @ID          updateStudentBio
// @Summary     Update a student's bio
// @Description Creates the bio on first use. Text fields are limited to 1000 characters.
// @Tags        Students
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Student ID"  format(uuid)
// @Param       body  body  handlers.UpdateBioRequest  true  "Fields to change"
// @Success     200  {object}  domain.StudentBio
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /students/{id}/bio [put]
func (h *Handlers) UpdateBio(c *gin.Context) {
	var req UpdateBioRequest
	if !bindJSON(c, &req) {
		return
	}
	p := services.BioPatch{
		Goals:      req.Goals,
		Strengths:  req.Strengths,
		Weaknesses: req.Weaknesses,
		Notes:      req.Notes,
	}
	if req.StartedAt != nil {
		d, err := time.Parse(time.DateOnly, *req.StartedAt)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "started_at must be a YYYY-MM-DD date")
			return
		}
		p.StartedAt = &d
	}
	b, err := h.svc.Profiles.UpdateBio(c.Request.Context(), tutorID(c), c.Param("id"), p)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// SetAvatar godoc
// @ID          setStudentAvatar
// @Summary     Choose a student's avatar theme
// @Description Known themes: warrior, mage, explorer.
// @Tags        Students
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Student ID"  format(uuid)
// @Param       body  body  handlers.SetAvatarRequest  true  "Theme"
// @Success     200  {object}  domain.Student
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown student or theme"
// @Router      /students/{id}/avatar [post]
func (h *Handlers) SetAvatar(c *gin.Context) {
	var req SetAvatarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "avatar_theme_code required")
		return
	}
	st, err := h.svc.Profiles.SetAvatar(c.Request.Context(), tutorID(c), c.Param("id"), req.AvatarTheme)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}
