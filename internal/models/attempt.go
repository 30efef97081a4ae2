package models

import (
	"time"

	"gorm.io/datatypes"
)

type Section = string

const (
	SectionLang  Section = "lang"
	SectionLogic Section = "logic"
)

type Form = string

const (
	FormOdd  Form = "odd"
	FormEven Form = "even"
	// FormNone is used by subject sheets that have a single ordering.
	FormNone Form = "na"
)

// Attempt flows recorded in meta
const (
	FlowSection      = "section"
	FlowSubject      = "subject"
	FlowStaffSubject = "staff_subject"
)

// ExamAttempt is one grading event for one user and section.
// Rows are append-only apart from viewed_at and the soft-delete pair.
type ExamAttempt struct {
	ID            uint     `json:"id" gorm:"primaryKey"`
	UserID        *string  `json:"user_id" gorm:"size:255;index:idx_exam_attempts_user_created,priority:1"`
	Year          string   `json:"year" gorm:"not null;size:16;index"`
	Section       string   `json:"section" gorm:"not null;size:32"`
	Form          string   `json:"form" gorm:"not null;size:8"`
	RawScore      *int     `json:"raw_score"`
	OfficialTotal *int     `json:"official_total"`
	StandardScore *float64 `json:"standard_score"`
	Percentile    *float64 `json:"percentile"`

	IsDeleted bool       `json:"is_deleted" gorm:"not null"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	ViewedAt  *time.Time `json:"viewed_at"`

	Meta datatypes.JSON `json:"meta,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_exam_attempts_user_created,priority:2"`

	Items []ExamAttemptItem `json:"items,omitempty" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

// ReferenceTime is the timestamp the retake window is measured from.
func (a *ExamAttempt) ReferenceTime() time.Time {
	if a.ViewedAt != nil && !a.ViewedAt.IsZero() {
		return *a.ViewedAt
	}
	return a.CreatedAt
}

// AttemptMeta is stored in ExamAttempt.Meta.
type AttemptMeta struct {
	Flow           string `json:"flow"`
	Attempted      bool   `json:"attempted"`
	AttemptedCount int    `json:"attempted_count"`
	AssumedIndep   int    `json:"assumed_indep"`
	RawPassage     *int   `json:"raw_passage"`
	TotalPassage   int    `json:"total_passage"`
	Wrong          []int  `json:"wrong"`
	StartQ         int    `json:"start_q,omitempty"`
	EndQ           int    `json:"end_q,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
}

type ExamAttemptItem struct {
	ID            uint     `json:"id" gorm:"primaryKey"`
	AttemptID     uint     `json:"attempt_id" gorm:"not null;index"`
	UserID        *string  `json:"user_id,omitempty" gorm:"size:255"`
	ItemNo        int      `json:"item_no" gorm:"not null"`
	MyAnswer      *int     `json:"my_answer"`
	CorrectAnswer *int     `json:"correct_answer"`
	IsCorrect     *bool    `json:"is_correct"`
	PCorrect      *float64 `json:"p_correct"`
}

func (ExamAttemptItem) TableName() string {
	return "exam_attempt_items"
}

// AnonAttempt carries no identity; it feeds aggregate score distributions.
type AnonAttempt struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	Year          string    `json:"year" gorm:"not null;size:16"`
	Section       string    `json:"section" gorm:"not null;size:32"`
	Form          string    `json:"form" gorm:"not null;size:8"`
	RawScore      int       `json:"raw_score"`
	StandardScore *float64  `json:"standard_score"`
	Percentile    *float64  `json:"percentile"`
	CreatedAt     time.Time `json:"created_at"`
}

func (AnonAttempt) TableName() string {
	return "exam_attempts_anon"
}

// Student is read-only here; staff manage students elsewhere.
type Student struct {
	ID         uint    `json:"id" gorm:"primaryKey"`
	Name       string  `json:"name" gorm:"size:100"`
	UserID     *string `json:"user_id" gorm:"size:255;index"`
	GradeLevel *string `json:"grade_level" gorm:"size:32"`
	GradeYear  *int    `json:"grade_year"`
}

func (Student) TableName() string {
	return "students"
}

// AllModels lists the tables owned by this service, for development migrations.
func AllModels() []interface{} {
	return []interface{}{
		&ExamAttempt{},
		&ExamAttemptItem{},
		&AnonAttempt{},
		&Student{},
	}
}
