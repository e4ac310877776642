// Assignment HTTP handlers.
//
//   - GET    /assignments                (list, filter by student_id/status)
//   - POST   /assignments                (create, idempotent)
//   - GET    /assignments/{id}
//   - PATCH  /assignments/{id}
//   - DELETE /assignments/{id}
//   - POST   /assignments/{id}/start
//   - POST   /assignments/{id}/submit    (idempotent)
//   - GET    /assignments/{id}/submissions
package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/tbourn/go-tutor-backend/internal/services"
)

// CreateAssignmentRequest is the JSON payload for creating an assignment.
type CreateAssignmentRequest struct {
	StudentID   string     `json:"student_id" binding:"required" example:"6f1c5a36-1d53-4a4e-9d35-2f1f8d1b7a10"`
	Title       string     `json:"title" binding:"required" example:"Fractions worksheet"`
	Description string     `json:"description" example:"Exercises 1-12"`
	DueDate     *time.Time `json:"due_date" example:"2030-06-01T18:00:00Z"`
	// RewardType is xp (default), trophy or mem.
	RewardType string `json:"reward_type" example:"trophy"`
}

// UpdateAssignmentRequest is the JSON payload of a partial update.
type UpdateAssignmentRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	RewardType  *string    `json:"reward_type"`
	Status      *string    `json:"status" example:"in_progress"`
}

// SubmitAssignmentRequest is the JSON payload of a submission.
type SubmitAssignmentRequest struct {
	Grade     *int           `json:"grade" example:"9"`
	Feedback  string         `json:"feedback" example:"Well done"`
	Artifacts datatypes.JSON `json:"artifacts" swaggertype:"object"`
}

// CreateAssignment godoc
// @ID          createAssignment
// @Summary     Create an assignment
// @Tags        Assignments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key"
// @Param       body             body    handlers.CreateAssignmentRequest  true  "Assignment"
// @Success     201  {object}  domain.Assignment
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Student not found"
// @Router      /assignments [post]
func (h *Handlers) CreateAssignment(c *gin.Context) {
	var req CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "student_id and title required")
		return
	}
	a, err := h.svc.Assignments.Create(c.Request.Context(), tutorID(c), services.AssignmentInput{
		StudentID:   req.StudentID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		RewardType:  req.RewardType,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

// ListAssignments godoc
// @ID          listAssignments
// @Summary     List assignments (paginated)
// @Tags        Assignments
// @Produce     json
// @Security    BearerAuth
// @Param       student_id  query  string  false  "Only this student's assignments"
// @Param       status      query  string  false  "pending, in_progress, done or late"
// @Param       page        query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size   query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.Page[domain.Assignment]
// @Failure     404  {object}  handlers.ErrorResponse  "Student not found"
// @Router      /assignments [get]
func (h *Handlers) ListAssignments(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.svc.Assignments.List(c.Request.Context(), tutorID(c), services.AssignmentFilter{
		StudentID: c.Query("student_id"),
		Status:    c.Query("status"),
	}, page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, newPage(items, page, pageSize, total))
}

// GetAssignment godoc
// @ID          getAssignment
// @Summary     Get an assignment
// @Tags        Assignments
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Assignment ID"  format(uuid)
// @Success     200  {object}  domain.Assignment
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /assignments/{id} [get]
func (h *Handlers) GetAssignment(c *gin.Context) {
	a, err := h.svc.Assignments.Get(c.Request.Context(), tutorID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// UpdateAssignment godoc
// @ID          updateAssignment
// @Summary     Update an assignment
// @Description A status change must be a legal transition, otherwise 409 invalid_transition.
// @Tags        Assignments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Assignment ID"  format(uuid)
// @Param       body  body  handlers.UpdateAssignmentRequest  true  "Fields to change"
// @Success     200  {object}  domain.Assignment
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Illegal transition"
// @Router      /assignments/{id} [patch]
func (h *Handlers) UpdateAssignment(c *gin.Context) {
	var req UpdateAssignmentRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.svc.Assignments.Update(c.Request.Context(), tutorID(c), c.Param("id"), services.AssignmentPatch{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		RewardType:  req.RewardType,
		Status:      req.Status,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// DeleteAssignment godoc
// @ID          deleteAssignment
// @Summary     Delete an assignment
// @Tags        Assignments
// @Security    BearerAuth
// @Param       id  path  string  true  "Assignment ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /assignments/{id} [delete]
func (h *Handlers) DeleteAssignment(c *gin.Context) {
	if err := h.svc.Assignments.Delete(c.Request.Context(), tutorID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// StartAssignment godoc
// @ID          startAssignment
// @Summary     Start an assignment (pending|late -> in_progress)
// @Tags        Assignments
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Assignment ID"  format(uuid)
// @Success     200  {object}  domain.Assignment
// @Failure     409  {object}  handlers.ErrorResponse  "Illegal transition"
// @Router      /assignments/{id}/start [post]
func (h *Handlers) StartAssignment(c *gin.Context) {
	a, err := h.svc.Assignments.Start(c.Request.Context(), tutorID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// SubmitAssignment godoc
// @ID          submitAssignment
// @Summary     Submit an assignment and award its reward
// @Tags        Assignments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key"
// @Param       id    path  string  true  "Assignment ID"  format(uuid)
// @Param       body  body  handlers.SubmitAssignmentRequest  false  "Submission"
// @Success     200  {object}  services.SubmitResult
// @Failure     409  {object}  handlers.ErrorResponse  "Illegal transition"
// @Router      /assignments/{id}/submit [post]
func (h *Handlers) SubmitAssignment(c *gin.Context) {
	// The body is optional.
	var req SubmitAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.svc.Assignments.Submit(c.Request.Context(), tutorID(c), c.Param("id"), services.SubmitInput{
		Grade:     req.Grade,
		Feedback:  req.Feedback,
		Artifacts: req.Artifacts,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// ListSubmissions godoc
// @ID          listSubmissions
// @Summary     List an assignment's submissions
// @Tags        Assignments
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Assignment ID"  format(uuid)
// @Success     200  {array}   domain.Submission
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /assignments/{id}/submissions [get]
func (h *Handlers) ListSubmissions(c *gin.Context) {
	subs, err := h.svc.Assignments.Submissions(c.Request.Context(), tutorID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, subs)
}
