package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

func TestProfileService_Bio(t *testing.T) {
	db := newTestDB(t)
	tutor := seedTutor(t, db, "t@example.com")
	other := seedTutor(t, db, "o@example.com")
	st := seedStudent(t, db, tutor.ID, "Ann")
	s := &ProfileService{DB: db}
	ctx := context.Background()

	b, err := s.Bio(ctx, tutor.ID, st.ID)
	if err != nil || b.StudentID != st.ID || b.Goals != nil {
		t.Fatalf("empty bio = %+v err=%v", b, err)
	}
	var n int64
	db.Model(&domain.StudentBio{}).Count(&n)
	if n != 0 {
		t.Fatalf("reading must not create a row, got %d", n)
	}

	goals, notes := "  pass the exam ", "likes geometry"
	started := time.Date(2024, 9, 1, 15, 30, 0, 0, time.UTC)
	b, err = s.UpdateBio(ctx, tutor.ID, st.ID, BioPatch{Goals: &goals, Notes: &notes, StartedAt: &started})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if *b.Goals != "pass the exam" || b.StartedAt.Hour() != 0 {
		t.Fatalf("normalisation: %+v", b)
	}

	// Untouched fields survive; a blank field clears.
	blank := " "
	b, err = s.UpdateBio(ctx, tutor.ID, st.ID, BioPatch{Notes: &blank})
	if err != nil || b.Goals == nil || *b.Goals != "pass the exam" || b.Notes != nil {
		t.Fatalf("partial update = %+v err=%v", b, err)
	}

	long := strings.Repeat("я", maxBioFieldRunes+1)
	if _, err := s.UpdateBio(ctx, tutor.ID, st.ID, BioPatch{Strengths: &long}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("long field: %v", err)
	}
	if _, err := s.Bio(ctx, other.ID, st.ID); !errors.Is(err, ErrStudentNotFound) {
		t.Fatalf("foreign read: %v", err)
	}
	if _, err := s.UpdateBio(ctx, other.ID, st.ID, BioPatch{Goals: &goals}); !errors.Is(err, ErrStudentNotFound) {
		t.Fatalf("foreign update: %v", err)
	}
}

func TestProfileService_SetAvatar(t *testing.T) {
	db := newTestDB(t)
	tutor := seedTutor(t, db, "t@example.com")
	other := seedTutor(t, db, "o@example.com")
	st := seedStudent(t, db, tutor.ID, "Ann")
	s := &ProfileService{DB: db}
	ctx := context.Background()

	got, err := s.SetAvatar(ctx, tutor.ID, st.ID, " Mage ")
	if err != nil || got.AvatarTheme == nil || *got.AvatarTheme != domain.AvatarMage {
		t.Fatalf("set avatar = %+v err=%v", got, err)
	}
	if _, err := s.SetAvatar(ctx, tutor.ID, st.ID, "dragon"); !errors.Is(err, ErrAvatarThemeNotFound) {
		t.Fatalf("unknown theme: %v", err)
	}
	if _, err := s.SetAvatar(ctx, other.ID, st.ID, domain.AvatarWarrior); !errors.Is(err, ErrStudentNotFound) {
		t.Fatalf("foreign student: %v", err)
	}
}
