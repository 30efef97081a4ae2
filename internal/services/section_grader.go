package services

import (
	"math"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

// Submission maps a question number to the chosen answer 1..5.
type Submission map[int]int

// NormalizeSubmission keeps positive integer question numbers with an answer in 1..5.
// Everything else is dropped without error.
func NormalizeSubmission(sheet validator.AnswerSheet) Submission {
	out := make(Submission, len(sheet))
	for k, v := range sheet {
		q, ok := questionNumber(k)
		if !ok {
			continue
		}
		if a, ok := models.AnswerChoice(v); ok {
			out[q] = a
		}
	}
	return out
}

func questionNumber(k string) (int, bool) {
	k = strings.TrimSpace(k)
	if q, err := strconv.Atoi(k); err == nil {
		return q, q > 0
	}
	f, err := strconv.ParseFloat(k, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	q := int(math.Trunc(f))
	return q, q > 0
}

// ConversionLookup returns the standard score and percentile of a raw score.
type ConversionLookup func(raw int) (models.ScoreConversion, error)

// SectionResult is the graded outcome of one section. Score fields are nil when the
// section was not attempted.
type SectionResult struct {
	Attempted      bool     `json:"attempted"`
	AttemptedCount int      `json:"attempted_count"`
	Raw            *int     `json:"raw"`
	Std            *float64 `json:"std"`
	Pct            *float64 `json:"pct"`
	Total          int      `json:"total"`
	Wrong          []int    `json:"wrong"`
	AssumedIndep   int      `json:"assumed_indep"`
	RawPassage     *int     `json:"raw_passage"`
	TotalPassage   int      `json:"total_passage"`
}

// CountAttempted counts answered questions in 1..total that are graded against a known key.
// Independent questions do not count: answering only them is not an attempt.
func CountAttempted(spec SectionSpec, key *models.SectionKey, input Submission) int {
	n := 0
	for q := range input {
		if q < 1 || q > spec.Total || spec.IsIndependent(q) {
			continue
		}
		if _, ok := key.Answer(q); ok {
			n++
		}
	}
	return n
}

// GradeSection scores input against key. Independent questions are credited whatever was
// answered; questions without a key are neither correct nor wrong.
func GradeSection(spec SectionSpec, key *models.SectionKey, input Submission, conv ConversionLookup) (*SectionResult, error) {
	result := &SectionResult{
		Total:        spec.Total,
		Wrong:        []int{},
		AssumedIndep: spec.Indep,
		TotalPassage: spec.TotalPassage(),
	}

	result.AttemptedCount = CountAttempted(spec, key, input)
	if result.AttemptedCount == 0 {
		return result, nil
	}
	result.Attempted = true

	correct := 0
	for q := 1; q <= spec.Total; q++ {
		if spec.IsIndependent(q) {
			correct++
			continue
		}
		answer, ok := key.Answer(q)
		if !ok {
			continue
		}
		if mine, answered := input[q]; answered && mine == answer {
			correct++
		} else {
			result.Wrong = append(result.Wrong, q)
		}
	}

	rawPassage := max(0, correct-spec.Indep)
	result.Raw = &correct
	result.RawPassage = &rawPassage

	if conv != nil {
		hit, err := conv(correct)
		if err != nil {
			return nil, err
		}
		result.Std = hit.Std
		result.Pct = hit.Pct
	}
	return result, nil
}

// BuildAttemptItems produces one row per question 1..total. Unanswered questions keep
// my_answer and is_correct nil so a blank stays distinct from a wrong answer.
func BuildAttemptItems(spec SectionSpec, key *models.SectionKey, input Submission) []models.ExamAttemptItem {
	items := make([]models.ExamAttemptItem, 0, spec.Total)
	for q := 1; q <= spec.Total; q++ {
		item := models.ExamAttemptItem{
			ItemNo:   q,
			PCorrect: key.PCorrectFor(q),
		}
		mine, answered := input[q]
		if answered {
			item.MyAnswer = intPtr(mine)
		}
		if answer, ok := key.Answer(q); ok {
			item.CorrectAnswer = intPtr(answer)
			if answered {
				item.IsCorrect = boolPtr(mine == answer)
			}
		}
		items = append(items, item)
	}
	return items
}

// CountValid is the number of usable answers in the submission.
func (s Submission) CountValid() int {
	return len(s)
}

func intPtr(v int) *int {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

func float64Ptr(v float64) *float64 {
	return &v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
