package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist (or is not
// visible to the caller). It aliases gorm.ErrRecordNotFound for convenience.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that an insert hit a unique constraint.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation detects unique-constraint failures across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations even
// with TranslateError enabled.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}

// mapCreateErr converts unique violations to ErrDuplicate.
func mapCreateErr(err error) error {
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// ownedStudentIDs is a subquery selecting the ids of the tutor's students.
// Every tutor-scoped query filters through it so a foreign id simply matches
// nothing.
func ownedStudentIDs(db *gorm.DB, tutorID string) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true}).
		Table("students").
		Select("id").
		Where("tutor_id = ?", tutorID)
}
