package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// CountSubmissions counts the submissions made for a student's assignments.
// A zero since counts all of them.
func CountSubmissions(ctx context.Context, db *gorm.DB, studentID string, since time.Time) (int64, error) {
	q := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Joins("JOIN assignments ON assignments.id = submissions.assignment_id").
		Where("assignments.student_id = ?", studentID)
	if !since.IsZero() {
		q = q.Where("submissions.completed_at >= ?", since.UTC())
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// PriorityInput is what the priority radar needs to know about one student.
type PriorityInput struct {
	StudentID         string
	Name              string
	Level             int
	LateAssignments   int64
	Heat              int64
	RecentSubmissions int64
}

// PriorityInputs gathers, for every student of tutorID, the late assignment
// count, the summed error heat and the submissions completed since since.
// Students come back in creation order.
func PriorityInputs(ctx context.Context, db *gorm.DB, tutorID string, since time.Time) ([]PriorityInput, error) {
	q := db.WithContext(ctx)

	var students []domain.Student
	if err := q.Where("tutor_id = ?", tutorID).Order("created_at ASC, id ASC").Find(&students).Error; err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return nil, nil
	}

	type tally struct {
		StudentID string
		N         int64
	}
	collect := func(dst map[string]int64, stmt *gorm.DB) error {
		var rows []tally
		if err := stmt.Scan(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			dst[r.StudentID] = r.N
		}
		return nil
	}

	late := map[string]int64{}
	if err := collect(late, q.Model(&domain.Assignment{}).
		Select("student_id, COUNT(*) AS n").
		Where("student_id IN (?) AND status = ?", ownedStudentIDs(q, tutorID), domain.AssignmentLate).
		Group("student_id")); err != nil {
		return nil, err
	}

	heat := map[string]int64{}
	if err := collect(heat, q.Model(&domain.ErrorHotspot{}).
		Select("student_id, COALESCE(SUM(heat), 0) AS n").
		Where("student_id IN (?)", ownedStudentIDs(q, tutorID)).
		Group("student_id")); err != nil {
		return nil, err
	}

	recent := map[string]int64{}
	if err := collect(recent, q.Model(&domain.Submission{}).
		Select("assignments.student_id AS student_id, COUNT(*) AS n").
		Joins("JOIN assignments ON assignments.id = submissions.assignment_id").
		Where("assignments.student_id IN (?) AND submissions.completed_at >= ?", ownedStudentIDs(q, tutorID), since.UTC()).
		Group("assignments.student_id")); err != nil {
		return nil, err
	}

	out := make([]PriorityInput, 0, len(students))
	for _, s := range students {
		out = append(out, PriorityInput{
			StudentID:         s.ID,
			Name:              s.Name,
			Level:             s.Level,
			LateAssignments:   late[s.ID],
			Heat:              heat[s.ID],
			RecentSubmissions: recent[s.ID],
		})
	}
	return out, nil
}
