// Package services – StudentService
//
// This file implements StudentService, which manages a tutor's students. It
// normalizes names, enforces level bounds, and coordinates repository
// operations for creating, listing (with pagination), updating and deleting
// students. Deletion cascades to everything owned by the student inside a
// single transaction.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/repo"
)

// StudentRepo defines the repository contract required by StudentService.
type StudentRepo interface {
	// CreateStudent inserts a new student owned by tutorID.
	CreateStudent(ctx context.Context, db *gorm.DB, tutorID, name string, level int) (*domain.Student, error)

	// GetStudent fetches a student ensuring it belongs to the tutor.
	GetStudent(ctx context.Context, db *gorm.DB, id, tutorID string) (*domain.Student, error)

	// CountStudents returns the number of the tutor's students.
	CountStudents(ctx context.Context, db *gorm.DB, tutorID string) (int64, error)

	// ListStudentsPage returns a page of the tutor's students.
	ListStudentsPage(ctx context.Context, db *gorm.DB, tutorID string, offset, limit int) ([]domain.Student, error)

	// UpdateStudent applies column updates to one of the tutor's students.
	UpdateStudent(ctx context.Context, db *gorm.DB, id, tutorID string, updates map[string]any) error

	// DeleteStudentCascade removes the student and its dependents; tx must be a transaction.
	DeleteStudentCascade(ctx context.Context, tx *gorm.DB, id, tutorID string) error

	// StudentsStats returns the row count and latest update time for ETags.
	StudentsStats(ctx context.Context, db *gorm.DB, tutorID string) (int64, *time.Time, error)
}

// StudentService provides student-level operations scoped to a tutor.
type StudentService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the student repository used by this service.
	Repo StudentRepo

	// NameMaxLen caps stored names by rune length.
	NameMaxLen int
}

// NewStudentService constructs a StudentService with default name handling.
func NewStudentService(db *gorm.DB, r StudentRepo) *StudentService {
	return &StudentService{DB: db, Repo: r, NameMaxLen: 255}
}

// StudentPatch carries the optional fields of a partial update.
type StudentPatch struct {
	Name  *string
	Level *int
}

// Create inserts a new student owned by tutorID. A zero level means 1.
func (s *StudentService) Create(ctx context.Context, tutorID, name string, level int) (*domain.Student, error) {
	name = s.normalizeName(name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if level == 0 {
		level = 1
	}
	if level < 1 {
		return nil, invalid("level must be >= 1")
	}
	st, err := s.Repo.CreateStudent(ctx, s.DB, tutorID, name, level)
	if err != nil {
		return nil, err
	}
	audit(ctx, "student.create", tutorID, st.ID)
	return st, nil
}

// Get returns one of the tutor's students.
func (s *StudentService) Get(ctx context.Context, tutorID, id string) (*domain.Student, error) {
	st, err := s.Repo.GetStudent(ctx, s.DB, id, tutorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStudentNotFound
	}
	return st, err
}

// ListPage returns a page of the tutor's students and the total count.
func (s *StudentService) ListPage(ctx context.Context, tutorID string, page, pageSize int) ([]domain.Student, int64, error) {
	ctx, span := otel.Tracer("services/StudentService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", tutorID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, pageSize, offset := pageWindow(page, pageSize)
	total, err := s.Repo.CountStudents(ctx, s.DB, tutorID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Student{}, 0, nil
	}
	items, err := s.Repo.ListStudentsPage(ctx, s.DB, tutorID, offset, pageSize)
	return items, total, err
}

// Stats returns the count and newest update time of the tutor's students.
func (s *StudentService) Stats(ctx context.Context, tutorID string) (int64, *time.Time, error) {
	return s.Repo.StudentsStats(ctx, s.DB, tutorID)
}

// Update applies a partial update and returns the stored student.
func (s *StudentService) Update(ctx context.Context, tutorID, id string, p StudentPatch) (*domain.Student, error) {
	updates := map[string]any{}
	if p.Name != nil {
		name := s.normalizeName(*p.Name)
		if name == "" {
			return nil, invalid("name must not be empty")
		}
		updates["name"] = name
	}
	if p.Level != nil {
		if *p.Level < 1 {
			return nil, invalid("level must be >= 1")
		}
		updates["level"] = *p.Level
	}
	if len(updates) > 0 {
		err := s.Repo.UpdateStudent(ctx, s.DB, id, tutorID, updates)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		if err != nil {
			return nil, err
		}
		audit(ctx, "student.update", tutorID, id)
	}
	return s.Get(ctx, tutorID, id)
}

// Delete removes a student together with its assignments, submissions,
// lessons, hotspots, invoices, payments, memberships, mems and bio.
func (s *StudentService) Delete(ctx context.Context, tutorID, id string) error {
	ctx, span := otel.Tracer("services/StudentService").Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("student.id", id)),
	)
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.Repo.DeleteStudentCascade(ctx, tx, id, tutorID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrStudentNotFound
	}
	if err != nil {
		return err
	}
	audit(ctx, "student.delete", tutorID, id)
	return nil
}

// normalizeName applies NFC, trims, collapses whitespace and clips.
func (s *StudentService) normalizeName(name string) string {
	name = whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(name)), " ")
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		name = string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// ownedStudent loads a student for tutorID, mapping a miss to ErrStudentNotFound.
func ownedStudent(ctx context.Context, db *gorm.DB, tutorID, studentID string) (*domain.Student, error) {
	st, err := repo.GetStudent(ctx, db, studentID, tutorID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrStudentNotFound
	}
	return st, err
}
