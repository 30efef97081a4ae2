package services

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

// Assistant scopes. Every subject sheet belongs to the korean scope.
var assistantScopes = map[string]bool{
	"korean":  true,
	"math":    true,
	"english": true,
}

const subjectSheetScope = "korean"

type subjectGradingService struct {
	repo      repositories.Repository
	persister *AttemptPersister
	logger    *slog.Logger
	validator *validator.Validator
	timeout   time.Duration
}

func NewSubjectGradingService(repo repositories.Repository, persister *AttemptPersister, logger *slog.Logger, validator *validator.Validator, timeout time.Duration) SubjectGradingService {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &subjectGradingService{
		repo:      repo,
		persister: persister,
		logger:    logger,
		validator: validator,
		timeout:   timeout,
	}
}

type subjectSheet struct {
	year    int
	subject string
	startQ  int
	endQ    int
	answers validator.AnswerSheet
}

// GradeOwn grades the caller's own sheet; user_id in the body must name the caller.
func (s *subjectGradingService) GradeOwn(ctx context.Context, req *SubjectGradeRequest, user *models.User) (*SubjectGradeResponse, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}
	if req == nil {
		return nil, ErrInvalidRequest
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.UserID) != user.ID {
		return nil, ErrUserMismatch
	}

	sheet := subjectSheet{
		year:    req.Year,
		subject: strings.TrimSpace(req.Subject),
		startQ:  req.StartQ,
		endQ:    req.EndQ,
		answers: req.Answers,
	}
	return s.grade(ctx, sheet, user.ID, "", models.FlowSubject)
}

// GradeForStudent lets staff grade a sheet for a student linked to a user account.
func (s *subjectGradingService) GradeForStudent(ctx context.Context, req *StaffSubjectGradeRequest, staff *models.User) (*SubjectGradeResponse, error) {
	if err := requireStaff(staff, 0, "create"); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrInvalidRequest
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	subject := strings.TrimSpace(req.Subject)
	if err := s.checkAssistantScope(staff, subject); err != nil {
		return nil, err
	}

	student, err := s.loadStudent(ctx, req.TargetStudentID)
	if err != nil {
		return nil, err
	}

	sheet := subjectSheet{
		year:    req.Year,
		subject: subject,
		startQ:  req.StartQ,
		endQ:    req.EndQ,
		answers: req.Answers,
	}
	resp, err := s.grade(ctx, sheet, *student.UserID, staff.ID, models.FlowStaffSubject)
	if err != nil {
		return nil, err
	}
	resp.TargetStudent = student
	resp.SavedBy = staff.ID
	return resp, nil
}

func (s *subjectGradingService) checkAssistantScope(staff *models.User, subject string) error {
	if staff.Role != models.RoleAssistant {
		return nil
	}
	scope := strings.ToLower(strings.TrimSpace(staff.AssistantSubject))
	if !assistantScopes[scope] {
		return NewPermissionError(staff.ID, 0, "subject_attempt", "create", "assistant has no subject scope")
	}
	if scope != subjectSheetScope {
		return NewPermissionError(staff.ID, 0, "subject_attempt", "create", "subject "+subject+" is outside the "+scope+" scope")
	}
	return nil
}

func (s *subjectGradingService) loadStudent(ctx context.Context, id uint) (*models.Student, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	student, err := s.repo.Student().GetByID(tctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrStudentNotFound
		}
		return nil, NewUpstreamError("load student", err)
	}
	if student.UserID == nil || strings.TrimSpace(*student.UserID) == "" {
		return nil, ErrStudentNotLinked
	}
	return student, nil
}

func (s *subjectGradingService) grade(ctx context.Context, sheet subjectSheet, ownerID, actorID, flow string) (*SubjectGradeResponse, error) {
	rows, err := s.repo.ExamData().SubjectRows(sheet.subject, sheet.startQ, sheet.endQ)
	if err != nil {
		return nil, NewUpstreamError("load subject answers", err)
	}
	if len(rows) == 0 {
		return nil, ErrAnswerNotFound
	}

	input := NormalizeSubmission(sheet.answers)
	resp := &SubjectGradeResponse{
		OK:           true,
		Year:         sheet.year,
		Subject:      sheet.subject,
		StartQ:       sheet.startQ,
		EndQ:         sheet.endQ,
		Items:        make([]SubjectItem, 0, len(rows)),
		WrongDetails: []SubjectItem{},
	}

	attemptItems := make([]models.ExamAttemptItem, 0, len(rows))
	wrong := []int{}
	for _, row := range rows {
		item := SubjectItem{
			ItemNo:        row.QuestionID,
			CorrectAnswer: row.CorrectAnswer,
			Stars:         row.Stars,
			PCorrect:      row.PCorrect,
		}
		if mine, ok := input[row.QuestionID]; ok {
			item.MyAnswer = intPtr(mine)
			item.IsCorrect = boolPtr(mine == row.CorrectAnswer)
			resp.Summary.Attempted++
			if *item.IsCorrect {
				resp.Summary.Correct++
			} else {
				wrong = append(wrong, row.QuestionID)
				resp.WrongDetails = append(resp.WrongDetails, item)
			}
		} else {
			resp.Summary.Unanswered++
		}
		resp.Items = append(resp.Items, item)

		attemptItems = append(attemptItems, models.ExamAttemptItem{
			ItemNo:        row.QuestionID,
			MyAnswer:      item.MyAnswer,
			CorrectAnswer: intPtr(row.CorrectAnswer),
			IsCorrect:     item.IsCorrect,
			PCorrect:      row.PCorrect,
		})
	}
	resp.Summary.Total = len(rows)
	resp.Summary.Wrong = resp.Summary.Attempted - resp.Summary.Correct

	correct := resp.Summary.Correct
	result := &SectionResult{
		Attempted:      resp.Summary.Attempted > 0,
		AttemptedCount: resp.Summary.Attempted,
		Raw:            intPtr(correct),
		Total:          len(rows),
		Wrong:          wrong,
		RawPassage:     intPtr(correct),
		TotalPassage:   len(rows),
	}

	resp.AttemptID, err = s.persister.Persist(ctx, PersistRequest{
		UserID:  ownerID,
		Year:    strconv.Itoa(sheet.year),
		Section: sheet.subject,
		Form:    models.FormNone,
		Flow:    flow,
		Result:  result,
		Items:   attemptItems,
		ActorID: actorID,
		StartQ:  sheet.startQ,
		EndQ:    sheet.endQ,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Subject sheet graded",
		"subject", sheet.subject,
		"year", sheet.year,
		"range", strconv.Itoa(sheet.startQ)+"-"+strconv.Itoa(sheet.endQ),
		"owner_id", ownerID,
		"actor_id", actorID,
		"correct", correct,
		"total", len(rows))

	return resp, nil
}
