// Package handlers exposes the REST API of the tutoring backend.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services and translate results into HTTP responses. Every
// route except auth and health runs behind middleware.RequireAuth, so the
// acting tutor is always available via middleware.UserIDFrom.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/http/middleware"
	"github.com/tbourn/go-tutor-backend/internal/repo"
	"github.com/tbourn/go-tutor-backend/internal/services"
	"github.com/tbourn/go-tutor-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AuthService registers users and exchanges credentials for tokens.
type AuthService interface {
	Register(ctx context.Context, email, password, role string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*services.Token, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
}

// StudentService manages the tutor's students.
type StudentService interface {
	Create(ctx context.Context, tutorID, name string, level int) (*domain.Student, error)
	Get(ctx context.Context, tutorID, id string) (*domain.Student, error)
	ListPage(ctx context.Context, tutorID string, page, pageSize int) ([]domain.Student, int64, error)
	// Stats feeds the list ETag: row count and newest update time.
	Stats(ctx context.Context, tutorID string) (int64, *time.Time, error)
	Update(ctx context.Context, tutorID, id string, p services.StudentPatch) (*domain.Student, error)
	Delete(ctx context.Context, tutorID, id string) error
}

// AssignmentService manages assignments and their status machine.
type AssignmentService interface {
	Create(ctx context.Context, tutorID string, in services.AssignmentInput) (*domain.Assignment, error)
	Get(ctx context.Context, tutorID, id string) (*domain.Assignment, error)
	List(ctx context.Context, tutorID string, f services.AssignmentFilter, page, pageSize int) ([]domain.Assignment, int64, error)
	Update(ctx context.Context, tutorID, id string, p services.AssignmentPatch) (*domain.Assignment, error)
	Delete(ctx context.Context, tutorID, id string) error
	Start(ctx context.Context, tutorID, id string) (*domain.Assignment, error)
	Submit(ctx context.Context, tutorID, id string, in services.SubmitInput) (*services.SubmitResult, error)
	Submissions(ctx context.Context, tutorID, id string) ([]domain.Submission, error)
}

// LessonService manages lessons.
type LessonService interface {
	Create(ctx context.Context, tutorID string, in services.LessonInput) (*domain.Lesson, error)
	Get(ctx context.Context, tutorID, id string) (*domain.Lesson, error)
	List(ctx context.Context, tutorID, studentID string, page, pageSize int) ([]domain.Lesson, int64, error)
	Update(ctx context.Context, tutorID, id string, p services.LessonPatch) (*domain.Lesson, error)
	Delete(ctx context.Context, tutorID, id string) error
}

// TopicService manages topics and the error heatmap.
type TopicService interface {
	List(ctx context.Context) ([]domain.Topic, error)
	Create(ctx context.Context, userID, name string) (*domain.Topic, error)
	Bump(ctx context.Context, tutorID, studentID, topicID string, delta int) (*domain.ErrorHotspot, error)
	Heatmap(ctx context.Context, tutorID, studentID string) ([]domain.ErrorHotspot, error)
}

// MemService manages reward images.
type MemService interface {
	List(ctx context.Context, tutorID, studentID string) ([]domain.Mem, error)
	Create(ctx context.Context, tutorID string, in services.MemInput) (*domain.Mem, error)
	Delete(ctx context.Context, tutorID, id string) error
}

// TournamentService runs tournaments.
type TournamentService interface {
	List(ctx context.Context, tutorID string) ([]domain.Tournament, error)
	Create(ctx context.Context, tutorID string, in services.TournamentInput) (*domain.Tournament, error)
	Join(ctx context.Context, tutorID, tournamentID, studentID string) (*domain.TournamentParticipant, error)
	Score(ctx context.Context, tutorID, tournamentID, studentID string, points int) (*domain.TournamentParticipant, error)
	Leaderboard(ctx context.Context, tutorID, tournamentID string) ([]repo.LeaderboardRow, error)
}

// BillingService manages invoices and payments.
type BillingService interface {
	CreateInvoice(ctx context.Context, tutorID string, in services.InvoiceInput) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, tutorID, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, tutorID string, f services.BillingFilter, page, pageSize int) ([]domain.Invoice, int64, error)
	CancelInvoice(ctx context.Context, tutorID, id string) (*domain.Invoice, error)
	ExportInvoices(ctx context.Context, tutorID string, f services.BillingFilter) ([]byte, error)
	ListPayments(ctx context.Context, tutorID, studentID string, page, pageSize int) ([]domain.Payment, int64, error)
	CreatePayment(ctx context.Context, tutorID string, in services.PaymentInput) (*domain.Payment, error)
}

// ProfileService manages student bios and avatars.
type ProfileService interface {
	Bio(ctx context.Context, tutorID, studentID string) (*domain.StudentBio, error)
	UpdateBio(ctx context.Context, tutorID, studentID string, p services.BioPatch) (*domain.StudentBio, error)
	SetAvatar(ctx context.Context, tutorID, studentID, theme string) (*domain.Student, error)
}

// AnalyticsService derives progress indicators.
type AnalyticsService interface {
	Tempo(ctx context.Context, tutorID, studentID string, days int) (*services.Tempo, error)
	ExamForecast(ctx context.Context, tutorID, studentID string) (*services.Forecast, error)
	PriorityRadar(ctx context.Context, tutorID string) ([]services.PriorityItem, error)
}

// DashboardService computes the tutor overview.
type DashboardService interface {
	Overview(ctx context.Context, tutorID string) (*repo.Overview, error)
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers. Ready reports whether the
// backing store answers; it drives /health/ready.
type Services struct {
	Auth        AuthService
	Students    StudentService
	Assignments AssignmentService
	Lessons     LessonService
	Topics      TopicService
	Mems        MemService
	Tournaments TournamentService
	Billing     BillingService
	Dashboard   DashboardService
	Profiles    ProfileService
	Analytics   AnalyticsService
	Ready       func(ctx context.Context) error
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	svc Services
}

// New constructs a Handlers bound to the given services.
func New(svc Services) *Handlers {
	return &Handlers{svc: svc}
}

//
// DTOs shared by list endpoints
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// Page is the envelope of every paginated list.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

func newPage[T any](items []T, page, pageSize int, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := utils.TotalPages(total, pageSize)
	return Page[T]{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"), services.DefaultPageSize, services.MaxPageSize)
}

// tutorID returns the authenticated user id set by RequireAuth.
func tutorID(c *gin.Context) string {
	return middleware.UserIDFrom(c)
}

// bindJSON decodes the body into dst or answers 400.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}
