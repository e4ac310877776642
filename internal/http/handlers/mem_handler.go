// Mem HTTP handlers: reward images handed out to students.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/services"
)

// CreateMemRequest is the JSON payload for adding a mem.
type CreateMemRequest struct {
	URL       string  `json:"url" binding:"required" example:"https://img.example.com/cat.gif"`
	Caption   string  `json:"caption"`
	StudentID *string `json:"student_id"`
}

// ListMems godoc
// @ID          listMems
// @Summary     List mems
// @Tags        Mems
// @Produce     json
// @Security    BearerAuth
// @Param       student_id  query  string  false  "Only mems given to this student"
// @Success     200  {array}  domain.Mem
// @Router      /mems [get]
func (h *Handlers) ListMems(c *gin.Context) {
	ms, err := h.svc.Mems.List(c.Request.Context(), tutorID(c), c.Query("student_id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ms)
}

// CreateMem godoc
// @ID          createMem
// @Summary     Add a mem
// @Tags        Mems
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key"
// @Param       body  body  handlers.CreateMemRequest  true  "Mem"
// @Success     201  {object}  domain.Mem
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /mems [post]
func (h *Handlers) CreateMem(c *gin.Context) {
	var req CreateMemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url required")
		return
	}
	m, err := h.svc.Mems.Create(c.Request.Context(), tutorID(c), services.MemInput{
		URL:       req.URL,
		Caption:   req.Caption,
		StudentID: req.StudentID,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, m)
}

// DeleteMem godoc
// @ID          deleteMem
// @Summary     Delete a mem
// @Tags        Mems
// @Security    BearerAuth
// @Param       id  path  string  true  "Mem ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /mems/{id} [delete]
func (h *Handlers) DeleteMem(c *gin.Context) {
	if err := h.svc.Mems.Delete(c.Request.Context(), tutorID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}
