// Package domain defines the persistence models of the tutoring backend:
// tutors and their students, assignments and submissions, lessons, topic
// heatmaps, gamification (mems, tournaments) and billing. These types are
// mapped with GORM and shared by the repository and service layers.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// User roles.
const (
	RoleTutor   = "tutor"
	RoleStudent = "student"
	RoleParent  = "parent"
)

// User is an account that can authenticate against the API. Tutors own
// students; the other roles exist for future parent/student portals.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255);not null"`
	Role         string    `json:"role"       gorm:"type:varchar(16);not null;default:'tutor';check:role IN ('tutor','student','parent')"`
	IsActive     bool      `json:"is_active"  gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Student is a learner owned by a tutor. Level and ProgressPoints are driven
// by assignment submissions (see services.AssignmentService.Submit).
type Student struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	TutorID        string    `json:"tutor_id"        gorm:"type:char(36);not null;index:idx_students_tutor"`
	Name           string    `json:"name"            gorm:"type:varchar(255);not null"`
	Level          int       `json:"level"           gorm:"not null;default:1;check:level >= 1"`
	ProgressPoints int       `json:"progress_points" gorm:"not null;default:0;check:progress_points >= 0"`
	AvatarTheme    *string   `json:"avatar_theme,omitempty" gorm:"type:varchar(32)"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Tutor User `json:"-" gorm:"foreignKey:TutorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Student.
func (Student) TableName() string { return "students" }

// StudentBio holds the tutor's free-form notes about one student. A student
// has at most one; it is created on first write.
type StudentBio struct {
	StudentID  string     `json:"student_id"           gorm:"type:char(36);primaryKey"`
	StartedAt  *time.Time `json:"started_at,omitempty" gorm:"type:date"`
	Goals      *string    `json:"goals,omitempty"      gorm:"type:text"`
	Strengths  *string    `json:"strengths,omitempty"  gorm:"type:text"`
	Weaknesses *string    `json:"weaknesses,omitempty" gorm:"type:text"`
	Notes      *string    `json:"notes,omitempty"      gorm:"type:text"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Student Student `json:"-" gorm:"foreignKey:StudentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for StudentBio.
func (StudentBio) TableName() string { return "student_bios" }

// Assignment is a task given to a student. Its Status follows the machine
// defined in status.go.
type Assignment struct {
	ID          string     `json:"id"          gorm:"type:char(36);primaryKey"`
	StudentID   string     `json:"student_id"  gorm:"type:char(36);not null;index:idx_assignments_student"`
	Title       string     `json:"title"       gorm:"type:varchar(255);not null"`
	Description string     `json:"description" gorm:"type:text"`
	Status      string     `json:"status"      gorm:"type:varchar(16);not null;default:'pending';index;check:status IN ('pending','in_progress','done','late')"`
	RewardType  string     `json:"reward_type" gorm:"type:varchar(16);not null;default:'xp'"`
	DueDate     *time.Time `json:"due_date,omitempty" gorm:"index"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Student Student `json:"-" gorm:"foreignKey:StudentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Assignment.
func (Assignment) TableName() string { return "assignments" }

// Submission records the completion of an assignment together with the
// points it awarded.
type Submission struct {
	ID            string         `json:"id"             gorm:"type:char(36);primaryKey"`
	AssignmentID  string         `json:"assignment_id"  gorm:"type:char(36);not null;index"`
	CompletedAt   time.Time      `json:"completed_at"   gorm:"not null"`
	Grade         *int           `json:"grade,omitempty"`
	Feedback      string         `json:"feedback,omitempty" gorm:"type:text"`
	Artifacts     datatypes.JSON `json:"artifacts,omitempty"`
	PointsAwarded int            `json:"points_awarded" gorm:"not null;default:0"`
	CreatedAt     time.Time      `json:"created_at"`

	Assignment Assignment `json:"-" gorm:"foreignKey:AssignmentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "submissions" }

// Lesson is a scheduled session with a student.
type Lesson struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	StudentID string    `json:"student_id" gorm:"type:char(36);not null;index:idx_lessons_student,priority:1"`
	StartsAt  time.Time `json:"starts_at"  gorm:"not null;index:idx_lessons_student,priority:2"`
	Topic     string    `json:"topic"      gorm:"type:varchar(255)"`
	Notes     string    `json:"notes"      gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Student Student `json:"-" gorm:"foreignKey:StudentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Lesson.
func (Lesson) TableName() string { return "lessons" }

// Topic is a globally shared curriculum topic.
type Topic struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;uniqueIndex:ux_topics_name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Topic.
func (Topic) TableName() string { return "topics" }

// ErrorHotspot accumulates how often a student struggles with a topic.
type ErrorHotspot struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	StudentID string    `json:"student_id" gorm:"type:char(36);not null;uniqueIndex:ux_hotspot_student_topic,priority:1"`
	TopicID   string    `json:"topic_id"   gorm:"type:char(36);not null;uniqueIndex:ux_hotspot_student_topic,priority:2"`
	Heat      int       `json:"heat"       gorm:"not null;default:0;check:heat >= 0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Student Student `json:"-" gorm:"foreignKey:StudentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Topic   Topic   `json:"-" gorm:"foreignKey:TopicID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ErrorHotspot.
func (ErrorHotspot) TableName() string { return "error_hotspots" }

// Mem is a reward image a tutor hands out, optionally tied to one student.
type Mem struct {
	ID        string    `json:"id"                   gorm:"type:char(36);primaryKey"`
	TutorID   string    `json:"tutor_id"             gorm:"type:char(36);not null;index"`
	StudentID *string   `json:"student_id,omitempty" gorm:"type:char(36);index"`
	URL       string    `json:"url"                  gorm:"type:varchar(1024);not null"`
	Caption   string    `json:"caption,omitempty"    gorm:"type:varchar(512)"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Mem.
func (Mem) TableName() string { return "mems" }

// Tournament is a tutor-run competition among their students.
type Tournament struct {
	ID          string     `json:"id"          gorm:"type:char(36);primaryKey"`
	TutorID     string     `json:"tutor_id"    gorm:"type:char(36);not null;index"`
	Name        string     `json:"name"        gorm:"type:varchar(255);not null"`
	Description string     `json:"description" gorm:"type:text"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName returns the database table name for Tournament.
func (Tournament) TableName() string { return "tournaments" }

// TournamentParticipant is a student's membership and running score.
type TournamentParticipant struct {
	TournamentID string    `json:"tournament_id" gorm:"type:char(36);primaryKey"`
	StudentID    string    `json:"student_id"    gorm:"type:char(36);primaryKey;index"`
	Points       int       `json:"points"        gorm:"not null;default:0"`
	JoinedAt     time.Time `json:"joined_at"     gorm:"not null"`

	Tournament Tournament `json:"-" gorm:"foreignKey:TournamentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Student    Student    `json:"-" gorm:"foreignKey:StudentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for TournamentParticipant.
func (TournamentParticipant) TableName() string { return "tournament_participants" }

// Invoice is an amount billed to a student.
type Invoice struct {
	ID        string          `json:"id"         gorm:"type:char(36);primaryKey"`
	StudentID string          `json:"student_id" gorm:"type:char(36);not null;index"`
	Amount    decimal.Decimal `json:"amount"     gorm:"type:decimal(12,2);not null"`
	Status    string          `json:"status"     gorm:"type:varchar(16);not null;default:'issued';index;check:status IN ('issued','paid','overdue','cancelled')"`
	DueDate   *time.Time      `json:"due_date,omitempty" gorm:"index"`
	Notes     string          `json:"notes,omitempty"    gorm:"type:text"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	Student Student `json:"-" gorm:"foreignKey:StudentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Invoice.
func (Invoice) TableName() string { return "invoices" }

// Payment is money received from a student, optionally settling an invoice.
type Payment struct {
	ID        string          `json:"id"                   gorm:"type:char(36);primaryKey"`
	StudentID string          `json:"student_id"           gorm:"type:char(36);not null;index"`
	InvoiceID *string         `json:"invoice_id,omitempty" gorm:"type:char(36);index"`
	Amount    decimal.Decimal `json:"amount"               gorm:"type:decimal(12,2);not null"`
	Method    string          `json:"method"               gorm:"type:varchar(16);not null;check:method IN ('cash','card','transfer','online')"`
	PaidAt    time.Time       `json:"paid_at"              gorm:"not null"`
	CreatedAt time.Time       `json:"created_at"`

	Student Student `json:"-" gorm:"foreignKey:StudentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Payment.
func (Payment) TableName() string { return "payments" }

// All lists every model in migration order.
func All() []any {
	return []any{
		&User{},
		&Student{},
		&StudentBio{},
		&Assignment{},
		&Submission{},
		&Lesson{},
		&Topic{},
		&ErrorHotspot{},
		&Mem{},
		&Tournament{},
		&TournamentParticipant{},
		&Invoice{},
		&Payment{},
		&IdempotencyKey{},
	}
}
