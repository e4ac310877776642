// Tournament HTTP handlers.
//
//   - GET  /tournaments
//   - POST /tournaments                   (idempotent)
//   - POST /tournaments/{id}/join
//   - POST /tournaments/{id}/score
//   - GET  /tournaments/{id}/leaderboard
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/services"
)

// CreateTournamentRequest is the JSON payload for creating a tournament.
type CreateTournamentRequest struct {
	Name        string     `json:"name" binding:"required" example:"Spring math cup"`
	Description string     `json:"description"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}

// JoinTournamentRequest enrolls a student.
type JoinTournamentRequest struct {
	StudentID string `json:"student_id" binding:"required"`
}

// ScoreRequest adds Points to a participant.
type ScoreRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Points    int    `json:"points" example:"10"`
}

// ListTournaments godoc
// @ID          listTournaments
// @Summary     List tournaments
// @Tags        Tournaments
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.Tournament
// @Router      /tournaments [get]
func (h *Handlers) ListTournaments(c *gin.Context) {
	ts, err := h.svc.Tournaments.List(c.Request.Context(), tutorID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ts)
}

// CreateTournament godoc
// @ID          createTournament
// @Summary     Create a tournament
// @Tags        Tournaments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key"
// @Param       body  body  handlers.CreateTournamentRequest  true  "Tournament"
// @Success     201  {object}  domain.Tournament
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /tournaments [post]
func (h *Handlers) CreateTournament(c *gin.Context) {
	var req CreateTournamentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	t, err := h.svc.Tournaments.Create(c.Request.Context(), tutorID(c), services.TournamentInput{
		Name:        req.Name,
		Description: req.Description,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, t)
}

// JoinTournament godoc
// @ID          joinTournament
// @Summary     Enroll a student
// @Tags        Tournaments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Tournament ID"
// @Param       body  body  handlers.JoinTournamentRequest  true  "Student"
// @Success     201  {object}  domain.TournamentParticipant
// @Failure     409  {object}  handlers.ErrorResponse  "Already joined"
// @Router      /tournaments/{id}/join [post]
func (h *Handlers) JoinTournament(c *gin.Context) {
	var req JoinTournamentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "student_id required")
		return
	}
	p, err := h.svc.Tournaments.Join(c.Request.Context(), tutorID(c), c.Param("id"), req.StudentID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

// ScoreTournament godoc
// @ID          scoreTournament
// @Summary     Add points to a participant
// @Tags        Tournaments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Tournament ID"
// @Param       body  body  handlers.ScoreRequest  true  "Points"
// @Success     200  {object}  domain.TournamentParticipant
// @Failure     404  {object}  handlers.ErrorResponse  "Not a participant"
// @Router      /tournaments/{id}/score [post]
func (h *Handlers) ScoreTournament(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "student_id required")
		return
	}
	p, err := h.svc.Tournaments.Score(c.Request.Context(), tutorID(c), c.Param("id"), req.StudentID, req.Points)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// Leaderboard godoc
// @ID          leaderboard
// @Summary     Tournament standings
// @Description Points descending, earliest joiner first on ties.
// @Tags        Tournaments
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Tournament ID"
// @Success     200  {array}   repo.LeaderboardRow
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /tournaments/{id}/leaderboard [get]
func (h *Handlers) Leaderboard(c *gin.Context) {
	rows, err := h.svc.Tournaments.Leaderboard(c.Request.Context(), tutorID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, rows)
}
