package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/repo"
)

// DashboardService aggregates figures for the tutor's landing page.
type DashboardService struct {
	DB *gorm.DB
}

// Overview returns student and lesson counts, assignments by status and the
// outstanding invoice total.
func (s *DashboardService) Overview(ctx context.Context, tutorID string) (*repo.Overview, error) {
	return repo.TutorOverview(ctx, s.DB, tutorID)
}
