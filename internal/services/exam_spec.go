package services

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

var examYearPattern = regexp.MustCompile(`^(\d{4})(_pre)?$`)

// SectionSpec is the official shape of a section: the number of questions and how many
// leading questions are independent (credited to every candidate).
type SectionSpec struct {
	Total int
	Indep int
}

// TotalPassage is the number of questions that are actually graded against the key.
func (s SectionSpec) TotalPassage() int {
	return max(0, s.Total-s.Indep)
}

// IsIndependent reports whether q is one of the leading credited questions.
func (s SectionSpec) IsIndependent(q int) bool {
	return s.Indep > 0 && q >= 1 && q <= s.Indep
}

// BaseYear extracts the four digit year from "2025" or "2009_pre".
func BaseYear(year string) (int, bool) {
	m := examYearPattern.FindStringSubmatch(year)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return y, true
}

// editionSpec is the published shape per edition; ok is false outside the known editions.
func editionSpec(year, section string) (SectionSpec, bool) {
	y, ok := BaseYear(year)
	if !ok {
		return SectionSpec{}, false
	}

	switch section {
	case models.SectionLang:
		switch {
		case y == 2009:
			return SectionSpec{Total: 40, Indep: 4}, true
		case y >= 2010 && y <= 2013:
			return SectionSpec{Total: 35, Indep: 3}, true
		case y >= 2014 && y <= 2018:
			return SectionSpec{Total: 35}, true
		case y >= 2019 && y <= 2026:
			return SectionSpec{Total: 30}, true
		}
	case models.SectionLogic:
		switch {
		case y == 2009:
			return SectionSpec{Total: 40}, true
		case y >= 2010 && y <= 2018:
			return SectionSpec{Total: 35}, true
		case y >= 2019 && y <= 2026:
			return SectionSpec{Total: 40}, true
		}
	}
	return SectionSpec{}, false
}

// ResolveSectionSpec returns the edition rule for (year, section), or a flat spec sized by the
// key's coverage. ok is false when neither gives any question.
func ResolveSectionSpec(year, section string, key *models.SectionKey) (SectionSpec, bool) {
	if spec, ok := editionSpec(year, section); ok {
		// independent questions only exist in the language section
		if section != models.SectionLang {
			spec.Indep = 0
		}
		return spec, true
	}

	total := key.KeyedCount()
	if total == 0 {
		return SectionSpec{}, false
	}
	return SectionSpec{Total: total}, true
}

// KeyedQuestions lists the questions in 1..total that have an official answer.
func KeyedQuestions(spec SectionSpec, key *models.SectionKey) []int {
	var out []int
	for q := 1; q <= spec.Total; q++ {
		if _, ok := key.Answer(q); ok {
			out = append(out, q)
		}
	}
	sort.Ints(out)
	return out
}

// StarsHidden is true for the early editions whose difficulty data is not published.
func StarsHidden(year string) bool {
	switch year {
	case "2009_pre", "2009", "2010":
		return true
	}
	return false
}

// BuildStars maps every keyed question to its star, nil when unknown or hidden.
func BuildStars(year string, questions []int, stars map[int]int) map[string]*int {
	out := make(map[string]*int, len(questions))
	hidden := StarsHidden(year)
	for _, q := range questions {
		k := strconv.Itoa(q)
		if hidden {
			out[k] = nil
			continue
		}
		if s, ok := stars[q]; ok {
			s := s
			out[k] = &s
		} else {
			out[k] = nil
		}
	}
	return out
}
