// Lesson HTTP handlers: CRUD at /lessons, scoped through student ownership.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/services"
)

// CreateLessonRequest is the JSON payload for scheduling a lesson.
type CreateLessonRequest struct {
	StudentID string    `json:"student_id" binding:"required"`
	StartsAt  time.Time `json:"starts_at" example:"2030-06-01T16:00:00Z"`
	Topic     string    `json:"topic" example:"Quadratic equations"`
	Notes     string    `json:"notes"`
}

// UpdateLessonRequest is the JSON payload of a partial lesson update.
type UpdateLessonRequest struct {
	StartsAt *time.Time `json:"starts_at"`
	Topic    *string    `json:"topic"`
	Notes    *string    `json:"notes"`
}

// CreateLesson godoc
// @ID          createLesson
// @Summary     Schedule a lesson
// @Tags        Lessons
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreateLessonRequest  true  "Lesson"
// @Success     201  {object}  domain.Lesson
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Student not found"
// @Router      /lessons [post]
func (h *Handlers) CreateLesson(c *gin.Context) {
	var req CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "student_id required")
		return
	}
	l, err := h.svc.Lessons.Create(c.Request.Context(), tutorID(c), services.LessonInput{
		StudentID: req.StudentID,
		StartsAt:  req.StartsAt,
		Topic:     req.Topic,
		Notes:     req.Notes,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, l)
}

// ListLessons godoc
// @ID          listLessons
// @Summary     List lessons (paginated)
// @Tags        Lessons
// @Produce     json
// @Security    BearerAuth
// @Param       student_id  query  string  false  "Only this student's lessons"
// @Param       page        query  int     false  "Page number"
// @Param       page_size   query  int     false  "Items per page"
// @Success     200  {object}  handlers.Page[domain.Lesson]
// @Router      /lessons [get]
func (h *Handlers) ListLessons(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.svc.Lessons.List(c.Request.Context(), tutorID(c), c.Query("student_id"), page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, newPage(items, page, pageSize, total))
}

// GetLesson godoc
// @ID          getLesson
// @Summary     Get a lesson
// @Tags        Lessons
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Lesson ID"
// @Success     200  {object}  domain.Lesson
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /lessons/{id} [get]
func (h *Handlers) GetLesson(c *gin.Context) {
	l, err := h.svc.Lessons.Get(c.Request.Context(), tutorID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

// UpdateLesson godoc
// @ID          updateLesson
// @Summary     Update a lesson
// @Tags        Lessons
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Lesson ID"
// @Param       body  body  handlers.UpdateLessonRequest  true  "Fields to change"
// @Success     200  {object}  domain.Lesson
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /lessons/{id} [patch]
func (h *Handlers) UpdateLesson(c *gin.Context) {
	var req UpdateLessonRequest
	if !bindJSON(c, &req) {
		return
	}
	l, err := h.svc.Lessons.Update(c.Request.Context(), tutorID(c), c.Param("id"), services.LessonPatch{
		StartsAt: req.StartsAt,
		Topic:    req.Topic,
		Notes:    req.Notes,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

// DeleteLesson godoc
// @ID          deleteLesson
// @Summary     Delete a lesson
// @Tags        Lessons
// @Security    BearerAuth
// @Param       id  path  string  true  "Lesson ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /lessons/{id} [delete]
func (h *Handlers) DeleteLesson(c *gin.Context) {
	if err := h.svc.Lessons.Delete(c.Request.Context(), tutorID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}
