package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/repo"
)

// maxBioFieldRunes bounds each free-text bio field.
const maxBioFieldRunes = 1000

// BioPatch is a partial bio update; nil fields are left untouched and a
// blank text field clears the stored value.
type BioPatch struct {
	StartedAt  *time.Time
	Goals      *string
	Strengths  *string
	Weaknesses *string
	Notes      *string
}

// ProfileService manages the descriptive side of a student: the tutor's
// bio notes and the chosen avatar theme.
type ProfileService struct {
	DB *gorm.DB
}

// Bio returns the student's bio. A student without one gets an empty bio;
// nothing is stored until the first update.
func (s *ProfileService) Bio(ctx context.Context, tutorID, studentID string) (*domain.StudentBio, error) {
	if _, err := ownedStudent(ctx, s.DB, tutorID, studentID); err != nil {
		return nil, err
	}
	b, err := repo.GetStudentBio(ctx, s.DB, studentID)
	if errors.Is(err, repo.ErrNotFound) {
		return &domain.StudentBio{StudentID: studentID}, nil
	}
	return b, err
}

// UpdateBio applies p to the student's bio, creating it on first use.
func (s *ProfileService) UpdateBio(ctx context.Context, tutorID, studentID string, p BioPatch) (*domain.StudentBio, error) {
	for name, in := range map[string]*string{
		"goals":      p.Goals,
		"strengths":  p.Strengths,
		"weaknesses": p.Weaknesses,
		"notes":      p.Notes,
	} {
		if in != nil && utf8.RuneCountInString(*in) > maxBioFieldRunes {
			return nil, invalid("%s must not exceed %d characters", name, maxBioFieldRunes)
		}
	}

	b, err := s.Bio(ctx, tutorID, studentID)
	if err != nil {
		return nil, err
	}
	if p.StartedAt != nil {
		d := p.StartedAt.UTC().Truncate(24 * time.Hour)
		b.StartedAt = &d
	}
	setText(&b.Goals, p.Goals)
	setText(&b.Strengths, p.Strengths)
	setText(&b.Weaknesses, p.Weaknesses)
	setText(&b.Notes, p.Notes)

	if err := repo.SaveStudentBio(ctx, s.DB, b); err != nil {
		return nil, err
	}
	audit(ctx, "student.bio.update", tutorID, studentID)
	return b, nil
}

// SetAvatar picks one of the known avatar themes for the student.
func (s *ProfileService) SetAvatar(ctx context.Context, tutorID, studentID, theme string) (*domain.Student, error) {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if !domain.ValidAvatarTheme(theme) {
		return nil, ErrAvatarThemeNotFound
	}
	err := repo.UpdateStudent(ctx, s.DB, studentID, tutorID, map[string]any{"avatar_theme": theme})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, err
	}
	audit(ctx, "student.avatar.set", tutorID, studentID)
	return ownedStudent(ctx, s.DB, tutorID, studentID)
}

// setText stores the trimmed value of in, or clears dst when it is blank.
func setText(dst **string, in *string) {
	if in == nil {
		return
	}
	v := strings.TrimSpace(*in)
	if v == "" {
		*dst = nil
		return
	}
	*dst = &v
}
