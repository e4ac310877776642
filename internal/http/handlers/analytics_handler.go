// Analytics HTTP handlers.
//
//   - GET /analytics/tempo?student_id=&days=
//   - GET /analytics/exam-forecast?student_id=
//   - GET /analytics/priority-radar
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/services"
)

// PriorityRadarResponse wraps the ranked students.
type PriorityRadarResponse[T any] struct {
	Items []T `json:"items"`
}

// Tempo godoc
// @ID          analyticsTempo
// @Summary     Submission frequency of a student
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
// @Param       student_id  query  string  true   "Student ID"
// @Param       days        query  int     false  "Window in days"  minimum(1) maximum(365) default(30)
// @Success     200  {object}  services.Tempo
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /analytics/tempo [get]
func (h *Handlers) Tempo(c *gin.Context) {
	studentID, okID := requireStudentQuery(c)
	if !okID {
		return
	}
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "days must be an integer")
			return
		}
		days = n
	}
	t, err := h.svc.Analytics.Tempo(c.Request.Context(), tutorID(c), studentID, days)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// ExamForecast godoc
// @ID          analyticsExamForecast
// @Summary     Predicted exam score of a student
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
// @Param       student_id  query  string  true  "Student ID"
// @Success     200  {object}  services.Forecast
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /analytics/exam-forecast [get]
func (h *Handlers) ExamForecast(c *gin.Context) {
	studentID, okID := requireStudentQuery(c)
	if !okID {
		return
	}
	f, err := h.svc.Analytics.ExamForecast(c.Request.Context(), tutorID(c), studentID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// PriorityRadar godoc
// @ID          analyticsPriorityRadar
// @Summary     The tutor's students, most in need of attention first
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.PriorityRadarResponse[services.PriorityItem]
// @Router      /analytics/priority-radar [get]
func (h *Handlers) PriorityRadar(c *gin.Context) {
	items, err := h.svc.Analytics.PriorityRadar(c.Request.Context(), tutorID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, PriorityRadarResponse[services.PriorityItem]{Items: items})
}

func requireStudentQuery(c *gin.Context) (string, bool) {
	id := c.Query("student_id")
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "student_id required")
		return "", false
	}
	return id, true
}
