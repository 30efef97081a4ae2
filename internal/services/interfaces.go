package services

import (
	"context"
	"encoding/json"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

// ===== REQUEST DTOs =====

type GradeRequest = validator.GradeRequest
type RevealAnswersRequest = validator.RevealAnswersRequest
type SubjectGradeRequest = validator.SubjectGradeRequest
type StaffSubjectGradeRequest = validator.StaffSubjectGradeRequest
type MarkViewedRequest = validator.MarkViewedRequest
type AttemptListQuery = validator.AttemptListQuery

// ===== GRADING RESPONSES =====

// SectionView is a graded section as returned in multi mode.
type SectionView struct {
	OK bool `json:"ok"`
	*SectionResult
	Stars map[string]*int `json:"stars"`
}

type SingleGradeResponse struct {
	OK             bool               `json:"ok"`
	Year           json.RawMessage    `json:"year"`
	Section        string             `json:"section"`
	Form           string             `json:"form"`
	Attempted      bool               `json:"attempted"`
	AttemptedCount int                `json:"attempted_count"`
	Correct        *int               `json:"correct"`
	Total          int                `json:"total"`
	Wrong          []int              `json:"wrong"`
	AssumedIndep   int                `json:"assumed_indep"`
	RawPassage     *int               `json:"raw_passage"`
	TotalPassage   int                `json:"total_passage"`
	RawScore       *int               `json:"raw_score"`
	StandardScore  *float64           `json:"standard_score"`
	Percentile     *float64           `json:"percentile"`
	Stars          map[string]*int    `json:"stars"`
	AttemptID      *uint              `json:"attempt_id"`
}

// TotalBlock is the combined standard score of both sections. Only std_sum is filled for
// anonymous callers.
type TotalBlock struct {
	StdSum             *float64 `json:"std_sum"`
	ScoreCutUsed       *float64 `json:"score_cut_used"`
	ExpectedRankApprox *int     `json:"expected_rank_approx"`
	TotalPctApprox     *float64 `json:"total_pct_approx"`
	Note               *string  `json:"note"`
}

type AttemptIDs struct {
	Lang  *uint `json:"lang"`
	Logic *uint `json:"logic"`
}

type MultiGradeResponse struct {
	OK         bool               `json:"ok"`
	Year       json.RawMessage    `json:"year"`
	Form       string             `json:"form"`
	Lang       *SectionView       `json:"lang"`
	Logic      *SectionView       `json:"logic"`
	Total      TotalBlock         `json:"total"`
	AttemptID  *uint              `json:"attempt_id"`
	AttemptIDs AttemptIDs         `json:"attempt_ids"`
}

// GradeResponse holds exactly one of the two shapes.
type GradeResponse struct {
	Single *SingleGradeResponse
	Multi  *MultiGradeResponse
}

// Body is the value written to the client.
func (r *GradeResponse) Body() interface{} {
	if r.Multi != nil {
		return r.Multi
	}
	return r.Single
}

type RevealAnswersResponse struct {
	OK      bool               `json:"ok"`
	Year    json.RawMessage    `json:"year"`
	Section string             `json:"section"`
	Form    string             `json:"form"`
	Answers map[string]int     `json:"answers"`
}

type UsageExample struct {
	Method string                 `json:"method"`
	Body   map[string]interface{} `json:"body"`
}

type UsageResponse struct {
	OK    bool `json:"ok"`
	Usage struct {
		Multi  UsageExample `json:"multi"`
		Single UsageExample `json:"single"`
	} `json:"usage"`
}

// ===== SUBJECT GRADING RESPONSES =====

// SubjectItem is one keyed question of a subject sheet.
type SubjectItem struct {
	ItemNo        int      `json:"item_no"`
	MyAnswer      *int     `json:"my_answer"`
	IsCorrect     *bool    `json:"is_correct"`
	CorrectAnswer int      `json:"correct_answer"`
	Stars         *int     `json:"stars"`
	PCorrect      *float64 `json:"p_correct"`
}

type SubjectSummary struct {
	Total      int `json:"total"`
	Attempted  int `json:"attempted"`
	Correct    int `json:"correct"`
	Wrong      int `json:"wrong"`
	Unanswered int `json:"unanswered"`
}

type SubjectGradeResponse struct {
	OK            bool            `json:"ok"`
	AttemptID     *uint           `json:"attempt_id"`
	Year          int             `json:"year"`
	Subject       string          `json:"subject"`
	StartQ        int             `json:"start_q"`
	EndQ          int             `json:"end_q"`
	Summary       SubjectSummary  `json:"summary"`
	Items         []SubjectItem   `json:"items"`
	WrongDetails  []SubjectItem   `json:"wrong_details"`
	TargetStudent *models.Student `json:"target_student,omitempty"`
	SavedBy       string          `json:"saved_by,omitempty"`
}

// ===== ATTEMPT RESPONSES =====

type AttemptListResponse struct {
	OK       bool                  `json:"ok"`
	Attempts []*models.ExamAttempt `json:"attempts"`
	Total    int                   `json:"total"`
}

type MarkViewedResponse struct {
	OK      bool   `json:"ok"`
	Updated int    `json:"updated"`
	IDs     []uint `json:"ids"`
}

type SoftDeleteResponse struct {
	OK      bool                `json:"ok"`
	Attempt *models.ExamAttempt `json:"attempt"`
}

// ===== SERVICE INTERFACES =====

// GradingService grades lang/logic answer sheets. user is nil for anonymous callers.
type GradingService interface {
	Grade(ctx context.Context, req *GradeRequest, user *models.User) (*GradeResponse, error)
	RevealAnswers(ctx context.Context, req *RevealAnswersRequest) (*RevealAnswersResponse, error)
	Usage() *UsageResponse
}

// SubjectGradingService grades subject sheets over a question range.
type SubjectGradingService interface {
	GradeOwn(ctx context.Context, req *SubjectGradeRequest, user *models.User) (*SubjectGradeResponse, error)
	GradeForStudent(ctx context.Context, req *StaffSubjectGradeRequest, staff *models.User) (*SubjectGradeResponse, error)
}

type AttemptService interface {
	ListOwn(ctx context.Context, user *models.User, limit int) (*AttemptListResponse, error)
	GetOwn(ctx context.Context, id uint, user *models.User) (*models.ExamAttempt, error)
	MarkViewed(ctx context.Context, req *MarkViewedRequest, user *models.User) (*MarkViewedResponse, error)

	// staff
	ListForUser(ctx context.Context, query *AttemptListQuery, staff *models.User) (*AttemptListResponse, error)
	SoftDelete(ctx context.Context, id uint, staff *models.User) (*SoftDeleteResponse, error)
}

// ServiceManager manages all services and their dependencies
type ServiceManager interface {
	Grading() GradingService
	SubjectGrading() SubjectGradingService
	Attempt() AttemptService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
