package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// GetStudentBio returns the bio of studentID or ErrNotFound. Ownership is
// checked by the caller.
func GetStudentBio(ctx context.Context, db *gorm.DB, studentID string) (*domain.StudentBio, error) {
	var b domain.StudentBio
	if err := db.WithContext(ctx).First(&b, "student_id = ?", studentID).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveStudentBio inserts or replaces the bio row keyed by b.StudentID.
func SaveStudentBio(ctx context.Context, db *gorm.DB, b *domain.StudentBio) error {
	b.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"started_at", "goals", "strengths", "weaknesses", "notes", "updated_at"}),
	}).Create(b).Error
}
