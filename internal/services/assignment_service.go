// Package services – AssignmentService
//
// AssignmentService owns the assignment state machine
// (pending → in_progress → done, with late as a side state set by the
// scheduler) and the reward bookkeeping that happens on submission.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/repo"
)

// AssignmentInput is the payload of Create.
type AssignmentInput struct {
	StudentID   string
	Title       string
	Description string
	DueDate     *time.Time
	RewardType  string
}

// AssignmentPatch carries the optional fields of a partial update.
type AssignmentPatch struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	RewardType  *string
	Status      *string
}

// AssignmentFilter narrows List.
type AssignmentFilter struct {
	StudentID string
	Status    string
}

// SubmitInput is the payload of Submit.
type SubmitInput struct {
	Grade     *int
	Feedback  string
	Artifacts datatypes.JSON
}

// SubmitResult is everything Submit changed.
type SubmitResult struct {
	Assignment *domain.Assignment `json:"assignment"`
	Submission *domain.Submission `json:"submission"`
	Student    *domain.Student    `json:"student"`
}

// AssignmentService implements assignment CRUD, transitions and rewards.
type AssignmentService struct {
	DB *gorm.DB
}

// Create adds a pending assignment for one of the tutor's students.
func (s *AssignmentService) Create(ctx context.Context, tutorID string, in AssignmentInput) (*domain.Assignment, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalid("title is required")
	}
	if in.RewardType == "" {
		in.RewardType = domain.RewardXP
	}
	if !domain.ValidRewardType(in.RewardType) {
		return nil, invalid("reward_type must be one of xp, trophy, mem")
	}
	if _, err := ownedStudent(ctx, s.DB, tutorID, in.StudentID); err != nil {
		return nil, err
	}

	a := &domain.Assignment{
		StudentID:   in.StudentID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     utcPtr(in.DueDate),
		RewardType:  in.RewardType,
		Status:      domain.AssignmentPending,
	}
	if err := repo.CreateAssignment(ctx, s.DB, a); err != nil {
		return nil, err
	}
	audit(ctx, "assignment.create", tutorID, a.ID)
	return a, nil
}

// Get returns an assignment visible to the tutor.
func (s *AssignmentService) Get(ctx context.Context, tutorID, id string) (*domain.Assignment, error) {
	a, err := repo.GetAssignment(ctx, s.DB, id, tutorID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAssignmentNotFound
	}
	return a, err
}

// List returns a page of the tutor's assignments. Filtering by a student
// the tutor does not own yields ErrStudentNotFound.
func (s *AssignmentService) List(ctx context.Context, tutorID string, f AssignmentFilter, page, pageSize int) ([]domain.Assignment, int64, error) {
	if f.Status != "" && !domain.ValidAssignmentStatus(f.Status) {
		return nil, 0, invalid("unknown status %q", f.Status)
	}
	if f.StudentID != "" {
		if _, err := ownedStudent(ctx, s.DB, tutorID, f.StudentID); err != nil {
			return nil, 0, err
		}
	}

	_, pageSize, offset := pageWindow(page, pageSize)
	rf := repo.AssignmentFilter{TutorID: tutorID, StudentID: f.StudentID, Status: f.Status}
	total, err := repo.CountAssignments(ctx, s.DB, rf)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Assignment{}, 0, nil
	}
	items, err := repo.ListAssignmentsPage(ctx, s.DB, rf, offset, pageSize)
	return items, total, err
}

// Update applies a partial update. A status change must be a legal move of
// the state machine.
func (s *AssignmentService) Update(ctx context.Context, tutorID, id string, p AssignmentPatch) (*domain.Assignment, error) {
	cur, err := s.Get(ctx, tutorID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, invalid("title must not be empty")
		}
		updates["title"] = t
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.DueDate != nil {
		updates["due_date"] = p.DueDate.UTC()
	}
	if p.RewardType != nil {
		if !domain.ValidRewardType(*p.RewardType) {
			return nil, invalid("reward_type must be one of xp, trophy, mem")
		}
		updates["reward_type"] = *p.RewardType
	}
	if p.Status != nil && *p.Status != cur.Status {
		if !domain.ValidAssignmentStatus(*p.Status) {
			return nil, invalid("unknown status %q", *p.Status)
		}
		if !domain.CanTransition(cur.Status, *p.Status) {
			return nil, ErrInvalidTransition
		}
		updates["status"] = *p.Status
	}
	if len(updates) == 0 {
		return cur, nil
	}

	// Guarding on the status we read makes concurrent transitions lose cleanly.
	if err := repo.UpdateAssignment(ctx, s.DB, id, cur.Status, updates); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	audit(ctx, "assignment.update", tutorID, id)
	return s.Get(ctx, tutorID, id)
}

// Delete removes an assignment and its submissions.
func (s *AssignmentService) Delete(ctx context.Context, tutorID, id string) error {
	if _, err := s.Get(ctx, tutorID, id); err != nil {
		return err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return repo.DeleteAssignment(ctx, tx, id)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrAssignmentNotFound
	}
	if err != nil {
		return err
	}
	audit(ctx, "assignment.delete", tutorID, id)
	return nil
}

// Start moves a pending or late assignment to in_progress.
func (s *AssignmentService) Start(ctx context.Context, tutorID, id string) (*domain.Assignment, error) {
	a, err := s.Get(ctx, tutorID, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(a.Status, domain.AssignmentInProgress) {
		return nil, ErrInvalidTransition
	}
	err = repo.UpdateAssignment(ctx, s.DB, id, a.Status, map[string]any{"status": domain.AssignmentInProgress})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	audit(ctx, "assignment.start", tutorID, id)
	return s.Get(ctx, tutorID, id)
}

// Submit completes an assignment: it records a submission, awards the reward
// points and levels the student up, all in one transaction.
func (s *AssignmentService) Submit(ctx context.Context, tutorID, id string, in SubmitInput) (*SubmitResult, error) {
	ctx, span := otel.Tracer("services/AssignmentService").Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("assignment.id", id),
			attribute.String("user.id", tutorID),
		),
	)
	defer span.End()

	var out SubmitResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := repo.GetAssignment(ctx, tx, id, tutorID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAssignmentNotFound
		}
		if err != nil {
			return err
		}
		if !domain.CanTransition(a.Status, domain.AssignmentDone) {
			return ErrInvalidTransition
		}
		if err := repo.UpdateAssignment(ctx, tx, id, a.Status, map[string]any{"status": domain.AssignmentDone}); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrInvalidTransition
			}
			return err
		}
		a.Status = domain.AssignmentDone

		points := domain.RewardPoints(a.RewardType)
		sub, err := repo.CreateSubmission(ctx, tx, id, in.Grade, in.Feedback, in.Artifacts, points)
		if err != nil {
			return err
		}

		st, err := repo.GetStudent(ctx, tx, a.StudentID, tutorID)
		if err != nil {
			return err
		}
		st.Level, st.ProgressPoints = domain.ApplyPoints(st.Level, st.ProgressPoints, points)
		if err := repo.SetStudentProgress(ctx, tx, st.ID, st.Level, st.ProgressPoints); err != nil {
			return err
		}

		out = SubmitResult{Assignment: a, Submission: sub, Student: st}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("points", out.Submission.PointsAwarded))
	audit(ctx, "assignment.submit", tutorID, id)
	return &out, nil
}

// Submissions lists the submissions of an assignment.
func (s *AssignmentService) Submissions(ctx context.Context, tutorID, id string) ([]domain.Submission, error) {
	if _, err := s.Get(ctx, tutorID, id); err != nil {
		return nil, err
	}
	return repo.ListSubmissions(ctx, s.DB, id)
}

// MarkLate flips overdue open assignments to late and returns how many changed.
func (s *AssignmentService) MarkLate(ctx context.Context, now time.Time) (int64, error) {
	return repo.MarkLateAssignments(ctx, s.DB, now.UTC())
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
