package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Overview godoc
// @ID          dashboardOverview
// @Summary     Tutor dashboard figures
// @Description Counts of students and lessons, assignments by status and the outstanding invoice total.
// @Tags        Dashboard
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  repo.Overview
// @Router      /dashboard/overview [get]
func (h *Handlers) Overview(c *gin.Context) {
	ov, err := h.svc.Dashboard.Overview(c.Request.Context(), tutorID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ov)
}
