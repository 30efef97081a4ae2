package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// AnswerChoice converts a submitted or dataset value to a choice in 1..5.
// Numbers are truncated; strings must parse as numbers; anything else is rejected.
func AnswerChoice(v interface{}) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	i := int(math.Trunc(f))
	if i < 1 || i > 5 {
		return 0, false
	}
	return i, true
}

// SectionKey is the official key of one (year, section, form).
// Answers holds only questions with a known answer in 1..5.
type SectionKey struct {
	Year     string
	Section  string
	Form     string
	Answers  map[int]int
	PCorrect map[int]float64
}

// Answer returns the official answer for q.
func (k *SectionKey) Answer(q int) (int, bool) {
	if k == nil {
		return 0, false
	}
	a, ok := k.Answers[q]
	return a, ok
}

// KeyedCount is the number of questions with a known answer.
func (k *SectionKey) KeyedCount() int {
	if k == nil {
		return 0
	}
	n := 0
	for q := range k.Answers {
		if q >= 1 {
			n++
		}
	}
	return n
}

func (k *SectionKey) PCorrectFor(q int) *float64 {
	if k == nil {
		return nil
	}
	if v, ok := k.PCorrect[q]; ok {
		return &v
	}
	return nil
}

// ScoreConversion is one row of the raw score conversion table.
type ScoreConversion struct {
	Std *float64 `json:"std"`
	Pct *float64 `json:"pct"`
}

// RankCut is one row of the combined standard score cumulative rank table.
type RankCut struct {
	Year     string
	ScoreCut float64
	CumRank  int
}

// SubjectKeyRow is one question of a subject answer sheet.
type SubjectKeyRow struct {
	Subject       string   `json:"subject"`
	QuestionID    int      `json:"question_id"`
	CorrectAnswer int      `json:"correct_answer"`
	Stars         *int     `json:"stars"`
	PCorrect      *float64 `json:"p_correct"`
}
