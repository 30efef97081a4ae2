package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/SAP-F-2025/grading-service/internal/config"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

// ErrExamNotFound means there is no answer pack for the (section, year).
var ErrExamNotFound = fmt.Errorf("exam %w", repositories.ErrNotFound)

// lazy loads a value once; the result, error included, is kept for the process lifetime.
type lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (l *lazy[T]) get(load func() (T, error)) (T, error) {
	l.once.Do(func() { l.val, l.err = load() })
	return l.val, l.err
}

type answerPack struct {
	OddAnswers  []interface{} `json:"odd_answers"`
	EvenAnswers []interface{} `json:"even_answers"`
	Answers     []interface{} `json:"answers"`
	PCorrect    []interface{} `json:"p_correct"`
}

// answerDB is db[section][year]
type answerDB map[string]map[string]answerPack

type conversionEntry struct {
	RawTo map[string]map[string]interface{} `json:"raw_to"`
}

// conversionTable is conv[section][year]
type conversionTable map[string]map[string]conversionEntry

// Store is the read-only exam dataset. Each file is loaded on first access and never mutated
// afterwards, so a Store is safe for concurrent readers.
type Store struct {
	paths config.DatasetConfig

	answers    lazy[answerDB]
	conversion lazy[conversionTable]
	ranks      lazy[[]models.RankCut]
	langStars  lazy[map[string]map[int]int]
	logicStars lazy[map[string]map[int]int]
	subjects   lazy[map[string]map[int]models.SubjectKeyRow]
}

var _ repositories.ExamDataRepository = (*Store)(nil)

func NewStore(paths config.DatasetConfig) *Store {
	return &Store{paths: paths}
}

// Preload forces every file to load and logs the ones that failed.
func (s *Store) Preload(logger *slog.Logger) {
	check := func(name string, err error) {
		if err == nil {
			logger.Info("Dataset loaded", "source", name)
			return
		}
		if errors.Is(err, ErrSourceMissing) {
			logger.Warn("Dataset source missing", "source", name, "error", err)
			return
		}
		logger.Error("Dataset failed to load", "source", name, "error", err)
	}

	_, err := s.answerDB()
	check("answer_db", err)
	_, err = s.conversionTable()
	check("score_table", err)
	_, err = s.rankTable()
	check("rank_table", err)
	_, err = s.starTable(models.SectionLang)
	check("lang_stars", err)
	_, err = s.starTable(models.SectionLogic)
	check("logic_stars", err)
	_, err = s.subjectSheet()
	check("subject_answers", err)
}

func (s *Store) answerDB() (answerDB, error) {
	return s.answers.get(func() (answerDB, error) {
		var db answerDB
		if err := readJSON(s.paths.AnswerDB, &db); err != nil {
			return nil, err
		}
		return db, nil
	})
}

func (s *Store) conversionTable() (conversionTable, error) {
	return s.conversion.get(func() (conversionTable, error) {
		var conv conversionTable
		if err := readJSON(s.paths.ScoreTable, &conv); err != nil {
			return nil, err
		}
		return conv, nil
	})
}

// SectionKey returns the official key for (year, section, form). Even forms read
// even_answers, every other form odd_answers; a pack without the form list falls back to answers.
func (s *Store) SectionKey(year, section, form string) (*models.SectionKey, error) {
	db, err := s.answerDB()
	if err != nil {
		return nil, err
	}

	pack, ok := db[section][year]
	if !ok {
		return nil, ErrExamNotFound
	}

	list := pack.OddAnswers
	if form == models.FormEven {
		list = pack.EvenAnswers
	}
	if list == nil {
		list = pack.Answers
	}

	key := &models.SectionKey{
		Year:     year,
		Section:  section,
		Form:     form,
		Answers:  make(map[int]int),
		PCorrect: make(map[int]float64),
	}
	// index 0 is unused
	for q := 1; q < len(list); q++ {
		if a, ok := models.AnswerChoice(list[q]); ok {
			key.Answers[q] = a
		}
	}
	for q := 1; q < len(pack.PCorrect); q++ {
		if p, ok := toFloat(pack.PCorrect[q]); ok {
			key.PCorrect[q] = p
		}
	}
	return key, nil
}

// Conversion looks up the standard score and percentile of a raw score. Missing entries
// yield both fields nil.
func (s *Store) Conversion(year, section string, raw int) (models.ScoreConversion, error) {
	conv, err := s.conversionTable()
	if err != nil {
		return models.ScoreConversion{}, err
	}

	hit, ok := conv[section][year].RawTo[strconv.Itoa(raw)]
	if !ok {
		return models.ScoreConversion{}, nil
	}

	var out models.ScoreConversion
	if v, ok := hit["std"].(float64); ok {
		out.Std = &v
	}
	if v, ok := hit["pct"].(float64); ok {
		out.Pct = &v
	}
	return out, nil
}

func (s *Store) rankTable() ([]models.RankCut, error) {
	return s.ranks.get(func() ([]models.RankCut, error) {
		rows, err := readTable(s.paths.RankTable, []string{"year"}, []string{"score_cut"}, []string{"cum_rank"})
		if err != nil {
			return nil, err
		}

		cuts := make([]models.RankCut, 0, len(rows))
		for _, row := range rows {
			cut, err1 := strconv.ParseFloat(row["score_cut"], 64)
			rank, err2 := strconv.ParseFloat(row["cum_rank"], 64)
			if err1 != nil || err2 != nil || row["year"] == "" {
				continue
			}
			cuts = append(cuts, models.RankCut{Year: row["year"], ScoreCut: cut, CumRank: int(rank)})
		}
		return cuts, nil
	})
}

// RankTable returns the cumulative rank cuts of a year, highest cut first.
// ErrSourceMissing means no rank table is deployed at all.
func (s *Store) RankTable(year string) ([]models.RankCut, error) {
	all, err := s.rankTable()
	if err != nil {
		return nil, err
	}

	var out []models.RankCut
	for _, c := range all {
		if c.Year == year {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScoreCut > out[j].ScoreCut })
	return out, nil
}

func (s *Store) starTable(section string) (map[string]map[int]int, error) {
	var l *lazy[map[string]map[int]int]
	var path string
	switch section {
	case models.SectionLang:
		l, path = &s.langStars, s.paths.LangStars
	case models.SectionLogic:
		l, path = &s.logicStars, s.paths.LogicStars
	default:
		return nil, nil
	}

	return l.get(func() (map[string]map[int]int, error) {
		rows, err := readTable(path, []string{"year"}, []string{"question_id"}, []string{"difficulty_star", "difficulty"})
		if err != nil {
			return nil, err
		}

		out := make(map[string]map[int]int)
		for _, row := range rows {
			year := row["year"]
			q, ok := parseInt(row["question_id"])
			if year == "" || !ok {
				continue
			}
			star, ok := normalizeStar(row["difficulty_star"], row["difficulty"])
			if !ok {
				continue
			}
			if out[year] == nil {
				out[year] = make(map[int]int)
			}
			out[year][q] = star
		}
		return out, nil
	})
}

// Stars returns difficulty stars of a (section, year) keyed by question number.
// A missing star sheet yields an empty map.
func (s *Store) Stars(section, year string) (map[int]int, error) {
	table, err := s.starTable(section)
	if err != nil {
		if errors.Is(err, ErrSourceMissing) {
			return map[int]int{}, nil
		}
		return nil, err
	}
	if byYear, ok := table[year]; ok {
		return byYear, nil
	}
	return map[int]int{}, nil
}

func (s *Store) subjectSheet() (map[string]map[int]models.SubjectKeyRow, error) {
	return s.subjects.get(func() (map[string]map[int]models.SubjectKeyRow, error) {
		rows, err := readTable(s.paths.SubjectAnswers,
			[]string{"category", "section", "subject"},
			[]string{"question_id", "item_no", "qno"},
			[]string{"correct_answer", "answer"},
		)
		if err != nil {
			return nil, err
		}

		out := make(map[string]map[int]models.SubjectKeyRow)
		for _, row := range rows {
			subject := row.first("category", "section", "subject")
			q, ok := parseInt(row.first("question_id", "item_no", "qno"))
			if subject == "" || !ok || q <= 0 {
				continue
			}
			answer, ok := models.AnswerChoice(row.first("correct_answer", "answer"))
			if !ok {
				continue
			}

			key := models.SubjectKeyRow{Subject: subject, QuestionID: q, CorrectAnswer: answer}
			if star, ok := normalizeStar(row.first("stars", "difficulty_star"), row["difficulty"]); ok {
				key.Stars = &star
			}
			if p, ok := toFloat(row.first("p_correct", "correct_rate")); ok {
				key.PCorrect = &p
			}

			if out[subject] == nil {
				out[subject] = make(map[int]models.SubjectKeyRow)
			}
			out[subject][q] = key
		}
		return out, nil
	})
}

// SubjectRows returns the keyed questions of a subject within [startQ, endQ], in order.
func (s *Store) SubjectRows(subject string, startQ, endQ int) ([]models.SubjectKeyRow, error) {
	sheet, err := s.subjectSheet()
	if err != nil {
		return nil, err
	}

	bySubject := sheet[subject]
	var out []models.SubjectKeyRow
	for q := startQ; q <= endQ; q++ {
		if row, ok := bySubject[q]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func readJSON(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return err
	}
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
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
	return f, true
}

func parseInt(s string) (int, bool) {
	f, ok := toFloat(s)
	if !ok {
		return 0, false
	}
	return int(math.Trunc(f)), true
}

// normalizeStar prefers a positive numeric star and falls back to the difficulty label.
func normalizeStar(star, difficulty string) (int, bool) {
	if f, ok := toFloat(star); ok && f > 0 {
		return int(math.Trunc(f)), true
	}
	switch strings.ToLower(strings.TrimSpace(difficulty)) {
	case "low":
		return 1, true
	case "medium", "memium":
		return 2, true
	case "high":
		return 3, true
	}
	return 0, false
}
