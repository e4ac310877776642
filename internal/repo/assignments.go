package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// AssignmentFilter narrows assignment listings. TutorID is mandatory.
type AssignmentFilter struct {
	TutorID   string
	StudentID string
	Status    string
}

func (f AssignmentFilter) apply(db *gorm.DB) *gorm.DB {
	q := db.Where("student_id IN (?)", ownedStudentIDs(db, f.TutorID))
	if f.StudentID != "" {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

// CreateAssignment inserts a pending assignment for studentID.
func CreateAssignment(ctx context.Context, db *gorm.DB, a *domain.Assignment) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = domain.AssignmentPending
	}
	a.CreatedAt, a.UpdatedAt = now, now
	return db.WithContext(ctx).Create(a).Error
}

// GetAssignment fetches an assignment visible to tutorID.
func GetAssignment(ctx context.Context, db *gorm.DB, id, tutorID string) (*domain.Assignment, error) {
	var a domain.Assignment
	q := db.WithContext(ctx)
	err := q.Where("id = ?", id).
		Where("student_id IN (?)", ownedStudentIDs(q, tutorID)).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CountAssignments counts assignments matching f.
func CountAssignments(ctx context.Context, db *gorm.DB, f AssignmentFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Assignment{})).Count(&n).Error
	return n, err
}

// ListAssignmentsPage returns a page of assignments matching f, newest first.
func ListAssignmentsPage(ctx context.Context, db *gorm.DB, f AssignmentFilter, offset, limit int) ([]domain.Assignment, error) {
	var out []domain.Assignment
	err := f.apply(db.WithContext(ctx).Model(&domain.Assignment{})).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateAssignment applies column updates guarded by the expected current
// status, so two concurrent transitions cannot both win. An empty
// expectStatus skips the guard.
func UpdateAssignment(ctx context.Context, db *gorm.DB, id, expectStatus string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	q := db.WithContext(ctx).Model(&domain.Assignment{}).Where("id = ?", id)
	if expectStatus != "" {
		q = q.Where("status = ?", expectStatus)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAssignment removes an assignment and its submissions.
func DeleteAssignment(ctx context.Context, tx *gorm.DB, id string) error {
	tx = tx.WithContext(ctx)
	if err := tx.Where("assignment_id = ?", id).Delete(&domain.Submission{}).Error; err != nil {
		return err
	}
	res := tx.Delete(&domain.Assignment{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSubmission records a completed assignment.
func CreateSubmission(ctx context.Context, db *gorm.DB, assignmentID string, grade *int, feedback string, artifacts datatypes.JSON, points int) (*domain.Submission, error) {
	now := time.Now().UTC()
	s := &domain.Submission{
		ID:            uuid.NewString(),
		AssignmentID:  assignmentID,
		CompletedAt:   now,
		Grade:         grade,
		Feedback:      feedback,
		Artifacts:     artifacts,
		PointsAwarded: points,
		CreatedAt:     now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// ListSubmissions returns the submissions of one assignment, newest first.
func ListSubmissions(ctx context.Context, db *gorm.DB, assignmentID string) ([]domain.Submission, error) {
	var out []domain.Submission
	err := db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("completed_at DESC").
		Find(&out).Error
	return out, err
}

// MarkLateAssignments flips open assignments whose due date passed to late.
func MarkLateAssignments(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Assignment{}).
		Where("status IN ? AND due_date IS NOT NULL AND due_date < ?",
			[]string{domain.AssignmentPending, domain.AssignmentInProgress}, now).
		Updates(map[string]any{"status": domain.AssignmentLate, "updated_at": now})
	return res.RowsAffected, res.Error
}
