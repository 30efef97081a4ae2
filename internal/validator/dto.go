package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExamYear accepts both 2025 and "2025" (or "2009_pre") in JSON.
type ExamYear string

func (y *ExamYear) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*y = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*y = ExamYear(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("year must be a string or number")
	}
	if i, err := n.Int64(); err == nil {
		*y = ExamYear(fmt.Sprintf("%d", i))
		return nil
	}
	*y = ExamYear(n.String())
	return nil
}

func (y ExamYear) String() string {
	return string(y)
}

// echoYear returns the year token exactly as the client sent it, keeping its JSON type.
// Requests built in code have no token and echo the year as a string.
func echoYear(raw json.RawMessage, y ExamYear) json.RawMessage {
	if len(raw) > 0 {
		return raw
	}
	out, _ := json.Marshal(string(y))
	return out
}

func rawYear(data []byte) json.RawMessage {
	var probe struct {
		Year json.RawMessage `json:"year"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || bytes.Equal(probe.Year, []byte("null")) {
		return nil
	}
	return probe.Year
}

// AnswerSheet is a raw submission, question number to chosen answer.
// Values are normalised later; unknown shapes are dropped, not rejected.
type AnswerSheet map[string]interface{}

// GradeRequest is the body of POST /grade.
type GradeRequest struct {
	Year         ExamYear    `json:"year" validate:"required"`
	Form         string      `json:"form" validate:"required,exam_form"`
	Section      string      `json:"section" validate:"omitempty,max=32"`
	Answers      AnswerSheet `json:"answers"`
	LangAnswers  AnswerSheet `json:"lang_answers"`
	LogicAnswers AnswerSheet `json:"logic_answers"`

	yearToken json.RawMessage
}

func (r *GradeRequest) UnmarshalJSON(data []byte) error {
	type plain GradeRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = GradeRequest(p)
	r.yearToken = rawYear(data)
	return nil
}

// YearEcho is the year as it arrived, string or number.
func (r *GradeRequest) YearEcho() json.RawMessage {
	return echoYear(r.yearToken, r.Year)
}

// IsMulti reports whether both section sheets are present.
func (r *GradeRequest) IsMulti() bool {
	return r.LangAnswers != nil && r.LogicAnswers != nil
}

// IsSingle reports the single section shape; multi wins when both match.
func (r *GradeRequest) IsSingle() bool {
	return !r.IsMulti() && strings.TrimSpace(r.Section) != "" && r.Answers != nil
}

type RevealAnswersRequest struct {
	Year        ExamYear      `json:"year" validate:"required"`
	Section     string        `json:"section" validate:"required,exam_section"`
	Form        string        `json:"form" validate:"required,exam_form"`
	QuestionIDs []interface{} `json:"question_ids" validate:"required,min=1"`

	yearToken json.RawMessage
}

func (r *RevealAnswersRequest) UnmarshalJSON(data []byte) error {
	type plain RevealAnswersRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RevealAnswersRequest(p)
	r.yearToken = rawYear(data)
	return nil
}

func (r *RevealAnswersRequest) YearEcho() json.RawMessage {
	return echoYear(r.yearToken, r.Year)
}

// SubjectGradeRequest grades the caller's own subject sheet.
type SubjectGradeRequest struct {
	Year    int         `json:"year" validate:"required,min=2000,max=2100"`
	Subject string      `json:"subject" validate:"required,exam_subject"`
	StartQ  int         `json:"start_q" validate:"required,min=1"`
	EndQ    int         `json:"end_q" validate:"required,min=1"`
	Answers AnswerSheet `json:"answers" validate:"required"`
	UserID  string      `json:"user_id" validate:"required"`
}

func (r *SubjectGradeRequest) UnmarshalJSON(data []byte) error {
	type plain SubjectGradeRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = SubjectGradeRequest(p)
	return applyCamelRange(data, &r.StartQ, &r.EndQ)
}

// StaffSubjectGradeRequest grades a subject sheet on behalf of a student.
type StaffSubjectGradeRequest struct {
	Year            int         `json:"year" validate:"required,min=2000,max=2100"`
	Subject         string      `json:"subject" validate:"required,exam_subject"`
	StartQ          int         `json:"start_q" validate:"required,min=1"`
	EndQ            int         `json:"end_q" validate:"required,min=1"`
	Answers         AnswerSheet `json:"answers" validate:"required"`
	TargetStudentID uint        `json:"target_student_id" validate:"required,gt=0"`
}

func (r *StaffSubjectGradeRequest) UnmarshalJSON(data []byte) error {
	type plain StaffSubjectGradeRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = StaffSubjectGradeRequest(p)
	return applyCamelRange(data, &r.StartQ, &r.EndQ)
}

// applyCamelRange accepts startQ/endQ as aliases of start_q/end_q. The snake case keys win.
func applyCamelRange(data []byte, startQ, endQ *int) error {
	var alias struct {
		StartQ *int `json:"startQ"`
		EndQ   *int `json:"endQ"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	if *startQ == 0 && alias.StartQ != nil {
		*startQ = *alias.StartQ
	}
	if *endQ == 0 && alias.EndQ != nil {
		*endQ = *alias.EndQ
	}
	return nil
}

const MaxViewedAttempts = 20

type MarkViewedRequest struct {
	AttemptID  *uint  `json:"attempt_id" validate:"omitempty,gt=0"`
	AttemptIDs []uint `json:"attempt_ids" validate:"omitempty,max=20,dive,gt=0"`
}

// IDs returns the distinct ids of the request, capped at MaxViewedAttempts.
func (r *MarkViewedRequest) IDs() []uint {
	seen := make(map[uint]bool)
	var out []uint
	add := func(id uint) {
		if id == 0 || seen[id] || len(out) >= MaxViewedAttempts {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	if r.AttemptID != nil {
		add(*r.AttemptID)
	}
	for _, id := range r.AttemptIDs {
		add(id)
	}
	return out
}

// AttemptListQuery is bound from the staff attempt list query string.
type AttemptListQuery struct {
	UserID         string `form:"user_id" json:"user_id" validate:"required"`
	IncludeDeleted bool   `form:"include_deleted" json:"include_deleted"`
	Limit          int    `form:"limit" json:"limit" validate:"omitempty,min=1,max=500"`
}
