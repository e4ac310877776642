package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// CreateMem inserts a mem owned by the tutor.
func CreateMem(ctx context.Context, db *gorm.DB, m *domain.Mem) error {
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(m).Error
}

// ListMems returns the tutor's mems, optionally only those given to studentID.
func ListMems(ctx context.Context, db *gorm.DB, tutorID, studentID string) ([]domain.Mem, error) {
	var out []domain.Mem
	q := db.WithContext(ctx).Where("tutor_id = ?", tutorID)
	if studentID != "" {
		q = q.Where("student_id = ?", studentID)
	}
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

// DeleteMem removes one of the tutor's mems.
func DeleteMem(ctx context.Context, db *gorm.DB, id, tutorID string) error {
	res := db.WithContext(ctx).Delete(&domain.Mem{}, "id = ? AND tutor_id = ?", id, tutorID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
