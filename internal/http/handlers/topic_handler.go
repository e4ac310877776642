// Topic and heatmap HTTP handlers.
//
//   - GET  /topics
//   - POST /topics
//   - POST /topics/heatmap               (bump a student's heat on a topic)
//   - GET  /topics/heatmap/{student_id}  (hottest first)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateTopicRequest is the JSON payload for creating a topic.
type CreateTopicRequest struct {
	Name string `json:"name" binding:"required" example:"Fractions"`
}

// BumpHeatRequest adjusts a student's heat on a topic by Delta.
type BumpHeatRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	TopicID   string `json:"topic_id" binding:"required"`
	Delta     int    `json:"delta" example:"1"`
}

// ListTopics godoc
// @ID          listTopics
// @Summary     List topics
// @Tags        Topics
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.Topic
// @Router      /topics [get]
func (h *Handlers) ListTopics(c *gin.Context) {
	ts, err := h.svc.Topics.List(c.Request.Context())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ts)
}

// CreateTopic godoc
// @ID          createTopic
// @Summary     Create a topic
// @Tags        Topics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreateTopicRequest  true  "Topic"
// @Success     201  {object}  domain.Topic
// @Failure     409  {object}  handlers.ErrorResponse  "Name taken"
// @Router      /topics [post]
func (h *Handlers) CreateTopic(c *gin.Context) {
	var req CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	t, err := h.svc.Topics.Create(c.Request.Context(), tutorID(c), req.Name)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, t)
}

// BumpHeat godoc
// @ID          bumpHeat
// @Summary     Adjust a student's error heat on a topic
// @Description Heat never drops below zero.
// @Tags        Topics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.BumpHeatRequest  true  "Delta"
// @Success     200  {object}  domain.ErrorHotspot
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /topics/heatmap [post]
func (h *Handlers) BumpHeat(c *gin.Context) {
	var req BumpHeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "student_id and topic_id required")
		return
	}
	hs, err := h.svc.Topics.Bump(c.Request.Context(), tutorID(c), req.StudentID, req.TopicID, req.Delta)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, hs)
}

// Heatmap godoc
// @ID          heatmap
// @Summary     A student's error heatmap, hottest first
// @Tags        Topics
// @Produce     json
// @Security    BearerAuth
// @Param       student_id  path  string  true  "Student ID"
// @Success     200  {array}   domain.ErrorHotspot
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /topics/heatmap/{student_id} [get]
func (h *Handlers) Heatmap(c *gin.Context) {
	hs, err := h.svc.Topics.Heatmap(c.Request.Context(), tutorID(c), c.Param("student_id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, hs)
}
