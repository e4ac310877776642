package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/repo"
)

// LessonInput is the payload of LessonService.Create.
type LessonInput struct {
	StudentID string
	StartsAt  time.Time
	Topic     string
	Notes     string
}

// LessonPatch carries the optional fields of a partial update.
type LessonPatch struct {
	StartsAt *time.Time
	Topic    *string
	Notes    *string
}

// LessonService manages lessons of the tutor's students.
type LessonService struct {
	DB *gorm.DB
}

// Create schedules a lesson.
func (s *LessonService) Create(ctx context.Context, tutorID string, in LessonInput) (*domain.Lesson, error) {
	if in.StartsAt.IsZero() {
		return nil, invalid("starts_at is required")
	}
	if _, err := ownedStudent(ctx, s.DB, tutorID, in.StudentID); err != nil {
		return nil, err
	}
	l := &domain.Lesson{
		StudentID: in.StudentID,
		StartsAt:  in.StartsAt.UTC(),
		Topic:     strings.TrimSpace(in.Topic),
		Notes:     in.Notes,
	}
	if err := repo.CreateLesson(ctx, s.DB, l); err != nil {
		return nil, err
	}
	audit(ctx, "lesson.create", tutorID, l.ID)
	return l, nil
}

// Get returns a lesson visible to the tutor.
func (s *LessonService) Get(ctx context.Context, tutorID, id string) (*domain.Lesson, error) {
	l, err := repo.GetLesson(ctx, s.DB, id, tutorID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrLessonNotFound
	}
	return l, err
}

// List returns a page of lessons, optionally for one student.
func (s *LessonService) List(ctx context.Context, tutorID, studentID string, page, pageSize int) ([]domain.Lesson, int64, error) {
	if studentID != "" {
		if _, err := ownedStudent(ctx, s.DB, tutorID, studentID); err != nil {
			return nil, 0, err
		}
	}
	_, pageSize, offset := pageWindow(page, pageSize)
	total, err := repo.CountLessons(ctx, s.DB, tutorID, studentID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Lesson{}, 0, nil
	}
	items, err := repo.ListLessonsPage(ctx, s.DB, tutorID, studentID, offset, pageSize)
	return items, total, err
}

// Update applies a partial update.
func (s *LessonService) Update(ctx context.Context, tutorID, id string, p LessonPatch) (*domain.Lesson, error) {
	if _, err := s.Get(ctx, tutorID, id); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if p.StartsAt != nil {
		if p.StartsAt.IsZero() {
			return nil, invalid("starts_at must not be empty")
		}
		updates["starts_at"] = p.StartsAt.UTC()
	}
	if p.Topic != nil {
		updates["topic"] = strings.TrimSpace(*p.Topic)
	}
	if p.Notes != nil {
		updates["notes"] = *p.Notes
	}
	if err := repo.UpdateLesson(ctx, s.DB, id, updates); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		audit(ctx, "lesson.update", tutorID, id)
	}
	return s.Get(ctx, tutorID, id)
}

// Delete removes a lesson.
func (s *LessonService) Delete(ctx context.Context, tutorID, id string) error {
	if _, err := s.Get(ctx, tutorID, id); err != nil {
		return err
	}
	if err := repo.DeleteLesson(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrLessonNotFound
		}
		return err
	}
	audit(ctx, "lesson.delete", tutorID, id)
	return nil
}
