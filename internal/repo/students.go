// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Student model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. Reads and writes are scoped by tutor id:
// a student owned by another tutor is reported as ErrNotFound.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// CreateStudent inserts a new Student owned by tutorID.
func CreateStudent(ctx context.Context, db *gorm.DB, tutorID, name string, level int) (*domain.Student, error) {
	now := time.Now().UTC()
	s := &domain.Student{
		ID:        uuid.NewString(),
		TutorID:   tutorID,
		Name:      name,
		Level:     level,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetStudent fetches a single student by id, enforcing tutor ownership.
func GetStudent(ctx context.Context, db *gorm.DB, id, tutorID string) (*domain.Student, error) {
	var s domain.Student
	err := db.WithContext(ctx).
		Where("id = ? AND tutor_id = ?", id, tutorID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CountStudents returns the number of students owned by tutorID.
func CountStudents(ctx context.Context, db *gorm.DB, tutorID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Student{}).Where("tutor_id = ?", tutorID).Count(&n).Error
	return n, err
}

// ListStudentsPage returns a page of the tutor's students, oldest first.
func ListStudentsPage(ctx context.Context, db *gorm.DB, tutorID string, offset, limit int) ([]domain.Student, error) {
	var out []domain.Student
	err := db.WithContext(ctx).
		Where("tutor_id = ?", tutorID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateStudent applies column updates to a student owned by tutorID.
func UpdateStudent(ctx context.Context, db *gorm.DB, id, tutorID string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Student{}).
		Where("id = ? AND tutor_id = ?", id, tutorID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStudentProgress stores the level/points pair computed by a submission.
func SetStudentProgress(ctx context.Context, db *gorm.DB, id string, level, points int) error {
	return db.WithContext(ctx).
		Model(&domain.Student{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"level":           level,
			"progress_points": points,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// DeleteStudentCascade removes a student and everything hanging off it.
// It must run inside a transaction; the FK cascades declared on the models
// back it up but are not relied on, since SQLite enforces them per
// connection only.
func DeleteStudentCascade(ctx context.Context, tx *gorm.DB, id, tutorID string) error {
	tx = tx.WithContext(ctx)

	var s domain.Student
	if err := tx.Where("id = ? AND tutor_id = ?", id, tutorID).First(&s).Error; err != nil {
		return err
	}

	assignmentIDs := tx.Session(&gorm.Session{NewDB: true}).
		Model(&domain.Assignment{}).Select("id").Where("student_id = ?", id)

	steps := []func() error{
		func() error { return tx.Where("assignment_id IN (?)", assignmentIDs).Delete(&domain.Submission{}).Error },
		func() error { return tx.Where("student_id = ?", id).Delete(&domain.Assignment{}).Error },
		func() error { return tx.Where("student_id = ?", id).Delete(&domain.Lesson{}).Error },
		func() error { return tx.Where("student_id = ?", id).Delete(&domain.ErrorHotspot{}).Error },
		func() error { return tx.Where("student_id = ?", id).Delete(&domain.TournamentParticipant{}).Error },
		func() error { return tx.Where("student_id = ?", id).Delete(&domain.Payment{}).Error },
		func() error { return tx.Where("student_id = ?", id).Delete(&domain.Invoice{}).Error },
		func() error { return tx.Where("student_id = ?", id).Delete(&domain.Mem{}).Error },
		func() error { return tx.Where("student_id = ?", id).Delete(&domain.StudentBio{}).Error },
		func() error { return tx.Delete(&domain.Student{}, "id = ?", id).Error },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
