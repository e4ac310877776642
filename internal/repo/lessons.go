package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// CreateLesson inserts a lesson for an already-authorized student.
func CreateLesson(ctx context.Context, db *gorm.DB, l *domain.Lesson) error {
	now := time.Now().UTC()
	l.ID = uuid.NewString()
	l.CreatedAt, l.UpdatedAt = now, now
	return db.WithContext(ctx).Create(l).Error
}

// GetLesson fetches a lesson visible to tutorID.
func GetLesson(ctx context.Context, db *gorm.DB, id, tutorID string) (*domain.Lesson, error) {
	var l domain.Lesson
	q := db.WithContext(ctx)
	err := q.Where("id = ?", id).
		Where("student_id IN (?)", ownedStudentIDs(q, tutorID)).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func lessonScope(db *gorm.DB, tutorID, studentID string) *gorm.DB {
	q := db.Model(&domain.Lesson{}).Where("student_id IN (?)", ownedStudentIDs(db, tutorID))
	if studentID != "" {
		q = q.Where("student_id = ?", studentID)
	}
	return q
}

// CountLessons counts lessons of the tutor, optionally for one student.
func CountLessons(ctx context.Context, db *gorm.DB, tutorID, studentID string) (int64, error) {
	var n int64
	err := lessonScope(db.WithContext(ctx), tutorID, studentID).Count(&n).Error
	return n, err
}

// ListLessonsPage returns lessons ordered by start time, most recent first.
func ListLessonsPage(ctx context.Context, db *gorm.DB, tutorID, studentID string, offset, limit int) ([]domain.Lesson, error) {
	var out []domain.Lesson
	err := lessonScope(db.WithContext(ctx), tutorID, studentID).
		Order("starts_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateLesson applies column updates to a lesson.
func UpdateLesson(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Lesson{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLesson removes a lesson.
func DeleteLesson(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.Lesson{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
