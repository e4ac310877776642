// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) and the tutor dashboard.
package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// StudentsStats returns aggregate metadata for a tutor's students: the total
// number of rows and the maximum UpdatedAt timestamp among those rows.
//
// When the tutor has no students, the returned count is 0 and maxUpdatedAt
// is nil.
func StudentsStats(ctx context.Context, db *gorm.DB, tutorID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Student{}).Where("tutor_id = ?", tutorID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// Overview aggregates the figures shown on the tutor dashboard.
type Overview struct {
	Students           int64            `json:"students_count"`
	Lessons            int64            `json:"lessons_count"`
	AssignmentsByState map[string]int64 `json:"assignments_by_status"`
	OutstandingTotal   decimal.Decimal  `json:"outstanding_total"`
}

// TutorOverview computes the dashboard figures for tutorID.
func TutorOverview(ctx context.Context, db *gorm.DB, tutorID string) (*Overview, error) {
	q := db.WithContext(ctx)
	out := &Overview{AssignmentsByState: map[string]int64{}}

	if err := q.Model(&domain.Student{}).Where("tutor_id = ?", tutorID).Count(&out.Students).Error; err != nil {
		return nil, err
	}
	if err := q.Model(&domain.Lesson{}).
		Where("student_id IN (?)", ownedStudentIDs(q, tutorID)).
		Count(&out.Lessons).Error; err != nil {
		return nil, err
	}

	var byStatus []struct {
		Status string
		N      int64
	}
	if err := q.Model(&domain.Assignment{}).
		Select("status, COUNT(*) AS n").
		Where("student_id IN (?)", ownedStudentIDs(q, tutorID)).
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, s := range byStatus {
		out.AssignmentsByState[s.Status] = s.N
	}

	// Summed in Go: SQLite returns SUM over decimal columns as a float.
	var amounts []decimal.Decimal
	if err := q.Model(&domain.Invoice{}).
		Where("student_id IN (?)", ownedStudentIDs(q, tutorID)).
		Where("status IN ?", []string{domain.InvoiceIssued, domain.InvoiceOverdue}).
		Pluck("amount", &amounts).Error; err != nil {
		return nil, err
	}
	out.OutstandingTotal = decimal.Sum(decimal.Zero, amounts...)
	return out, nil
}
