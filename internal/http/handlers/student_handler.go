// Student HTTP handlers.
//
//   - GET    /students                  (list, paginated, ETag support)
//   - POST   /students                  (create, idempotent)
//   - GET    /students/{id}
//   - PATCH  /students/{id}
//   - DELETE /students/{id}             (cascades to dependents)
//   - GET    /students/{id}/assignments
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/services"
)

// CreateStudentRequest is the JSON payload for creating a student.
type CreateStudentRequest struct {
	Name string `json:"name" binding:"required" example:"Ana Silva"`
	// Level defaults to 1.
	Level int `json:"level" example:"1"`
}

// UpdateStudentRequest is the JSON payload of a partial student update.
type UpdateStudentRequest struct {
	Name  *string `json:"name" example:"Ana Maria Silva"`
	Level *int    `json:"level" example:"2"`
}

// CreateStudent godoc
// @ID          createStudent
// @Summary     Create a student
// @Tags        Students
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key"  example(create-ana-1)
// @Param       body             body    handlers.CreateStudentRequest  true  "Student"
// @Success     201  {object}  domain.Student
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Idempotency conflict"
// @Router      /students [post]
func (h *Handlers) CreateStudent(c *gin.Context) {
	var req CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	st, err := h.svc.Students.Create(c.Request.Context(), tutorID(c), req.Name, req.Level)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, st)
}

// ListStudents godoc
// @ID          listStudents
// @Summary     List students (paginated)
// @Description Returns a page of the tutor's students. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Students
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.Page[domain.Student]
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Router      /students [get]
func (h *Handlers) ListStudents(c *gin.Context) {
	ctx := c.Request.Context()
	uid := tutorID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.svc.Students.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"students:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.svc.Students.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, newPage(items, page, pageSize, total))
}

// GetStudent godoc
// @ID          getStudent
// @Summary     Get a student
// @Tags        Students
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Student ID"  format(uuid)
// @Success     200  {object}  domain.Student
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /students/{id} [get]
func (h *Handlers) GetStudent(c *gin.Context) {
	st, err := h.svc.Students.Get(c.Request.Context(), tutorID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// UpdateStudent godoc
// @ID          updateStudent
// @Summary     Update a student
// @Tags        Students
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Student ID"  format(uuid)
// @Param       body  body  handlers.UpdateStudentRequest  true  "Fields to change"
// @Success     200  {object}  domain.Student
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /students/{id} [patch]
func (h *Handlers) UpdateStudent(c *gin.Context) {
	var req UpdateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	st, err := h.svc.Students.Update(c.Request.Context(), tutorID(c), c.Param("id"),
		services.StudentPatch{Name: req.Name, Level: req.Level})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// DeleteStudent godoc
// @ID          deleteStudent
// @Summary     Delete a student and everything that belongs to it
// @Tags        Students
// @Security    BearerAuth
// @Param       id  path  string  true  "Student ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /students/{id} [delete]
func (h *Handlers) DeleteStudent(c *gin.Context) {
	if err := h.svc.Students.Delete(c.Request.Context(), tutorID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// ListStudentAssignments godoc
// @ID          listStudentAssignments
// @Summary     List a student's assignments
// @Tags        Students
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Student ID"  format(uuid)
// @Success     200  {object}  handlers.Page[domain.Assignment]
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /students/{id}/assignments [get]
func (h *Handlers) ListStudentAssignments(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.svc.Assignments.List(c.Request.Context(), tutorID(c), services.AssignmentFilter{
		StudentID: c.Param("id"),
		Status:    c.Query("status"),
	}, page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, newPage(items, page, pageSize, total))
}
