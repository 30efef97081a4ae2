package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/cache"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

// Notes attached to the combined total
const (
	NoteSingleSectionOnly   = "single_section_only"
	NoteStdUnavailable      = "standard_score_unavailable"
	NoteBelowLowestCut      = "below_lowest_cut"
	NoteRankTableIncomplete = "rank_table_incomplete"
	NoteRankTableMissing    = "rank_table_missing"
)

type gradingService struct {
	repo      repositories.Repository
	persister *AttemptPersister
	guard     *cache.SubmissionGuard
	logger    *slog.Logger
	validator *validator.Validator
	timeout   time.Duration
	now       func() time.Time
}

func NewGradingService(repo repositories.Repository, persister *AttemptPersister, guard *cache.SubmissionGuard, logger *slog.Logger, validator *validator.Validator, timeout time.Duration) GradingService {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &gradingService{
		repo:      repo,
		persister: persister,
		guard:     guard,
		logger:    logger,
		validator: validator,
		timeout:   timeout,
		now:       time.Now,
	}
}

// gradedSection keeps what persistence needs next to the public result.
type gradedSection struct {
	section string
	spec    SectionSpec
	key     *models.SectionKey
	input   Submission
	result  *SectionResult
	stars   map[string]*int
}

// ===== GRADE =====

func (s *gradingService) Grade(ctx context.Context, req *GradeRequest, user *models.User) (*GradeResponse, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	req.Form = normalizeToken(req.Form)

	switch {
	case req.IsMulti():
		multi, err := s.gradeMulti(ctx, req, user)
		if err != nil {
			return nil, err
		}
		return &GradeResponse{Multi: multi}, nil
	case req.IsSingle():
		single, err := s.gradeSingle(ctx, req, user)
		if err != nil {
			return nil, err
		}
		return &GradeResponse{Single: single}, nil
	}
	return nil, ErrInvalidRequest
}

func (s *gradingService) gradeSingle(ctx context.Context, req *GradeRequest, user *models.User) (*SingleGradeResponse, error) {
	year := req.Year.String()
	section := strings.TrimSpace(req.Section)
	input := NormalizeSubmission(req.Answers)

	if user != nil {
		release, err := s.checkGate(ctx, user, year, []string{section})
		if err != nil {
			return nil, err
		}
		defer release()
	}

	g, err := s.gradeSection(ctx, year, section, req.Form, input)
	if err != nil {
		return nil, err
	}

	ids, err := s.persist(ctx, user, year, req.Form, g)
	if err != nil {
		return nil, err
	}
	attemptID := ids[0]

	r := g.result
	s.logger.InfoContext(ctx, "Section graded",
		"year", year,
		"section", section,
		"form", req.Form,
		"attempted", r.Attempted,
		"authenticated", user != nil)

	return &SingleGradeResponse{
		OK:             true,
		Year:           req.YearEcho(),
		Section:        section,
		Form:           req.Form,
		Attempted:      r.Attempted,
		AttemptedCount: r.AttemptedCount,
		Correct:        r.Raw,
		Total:          r.Total,
		Wrong:          r.Wrong,
		AssumedIndep:   r.AssumedIndep,
		RawPassage:     r.RawPassage,
		TotalPassage:   r.TotalPassage,
		RawScore:       r.Raw,
		StandardScore:  r.Std,
		Percentile:     r.Pct,
		Stars:          g.stars,
		AttemptID:      attemptID,
	}, nil
}

func (s *gradingService) gradeMulti(ctx context.Context, req *GradeRequest, user *models.User) (*MultiGradeResponse, error) {
	year := req.Year.String()
	langInput := NormalizeSubmission(req.LangAnswers)
	logicInput := NormalizeSubmission(req.LogicAnswers)

	if user != nil {
		var sections []string
		if langInput.CountValid() > 0 {
			sections = append(sections, models.SectionLang)
		}
		if logicInput.CountValid() > 0 {
			sections = append(sections, models.SectionLogic)
		}
		release, err := s.checkGate(ctx, user, year, sections)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	lang, err := s.gradeSection(ctx, year, models.SectionLang, req.Form, langInput)
	if err != nil {
		return nil, err
	}
	logic, err := s.gradeSection(ctx, year, models.SectionLogic, req.Form, logicInput)
	if err != nil {
		return nil, err
	}

	resp := &MultiGradeResponse{
		OK:    true,
		Year:  req.YearEcho(),
		Form:  req.Form,
		Lang:  &SectionView{OK: true, SectionResult: lang.result, Stars: lang.stars},
		Logic: &SectionView{OK: true, SectionResult: logic.result, Stars: logic.stars},
		Total: s.totalBlock(ctx, year, lang.result, logic.result, user != nil),
	}

	// both sections commit together; a failed logic insert must not leave a lang row behind
	ids, err := s.persist(ctx, user, year, req.Form, lang, logic)
	if err != nil {
		return nil, err
	}
	resp.AttemptIDs.Lang, resp.AttemptIDs.Logic = ids[0], ids[1]
	resp.AttemptID = resp.AttemptIDs.Lang
	if resp.AttemptID == nil {
		resp.AttemptID = resp.AttemptIDs.Logic
	}

	s.logger.InfoContext(ctx, "Exam graded",
		"year", year,
		"form", req.Form,
		"lang_attempted", lang.result.Attempted,
		"logic_attempted", logic.result.Attempted,
		"authenticated", user != nil)

	return resp, nil
}

// ===== RETAKE GATE =====

// checkGate takes the submission guard of every section and runs the retake window. The
// returned release must be called once the attempt is stored.
func (s *gradingService) checkGate(ctx context.Context, user *models.User, year string, sections []string) (func(), error) {
	var releases []func()
	releaseAll := func() {
		for _, r := range releases {
			r()
		}
	}
	if len(sections) == 0 {
		return releaseAll, nil
	}

	for _, section := range sections {
		gctx, cancel := context.WithTimeout(ctx, s.timeout)
		release, ok, err := s.guard.Acquire(gctx, user.ID, year, section)
		cancel()
		if err != nil {
			// the guard only narrows a race; grading goes on without it
			s.logger.WarnContext(ctx, "Submission guard unavailable", "error", err, "user_id", user.ID)
			continue
		}
		if !ok {
			releaseAll()
			s.logger.WarnContext(ctx, "Concurrent submission rejected",
				"user_id", user.ID, "year", year, "section", section)
			return nil, &GateBlockedError{
				Section:           section,
				Rule:              RuleConcurrentSubmission,
				Reason:            ReasonInProgress,
				RetryAfterMinutes: 1,
			}
		}
		releases = append(releases, release)
	}

	last, err := s.latestAttempt(ctx, user.ID)
	if err != nil {
		releaseAll()
		return nil, err
	}

	now := s.now()
	for _, section := range sections {
		decision := CheckRetakeWindow(WindowInput{
			Now:              now,
			AccountCreatedAt: user.CreatedAt,
			Last:             last,
			RequestedYear:    year,
			RequestedSection: section,
		})
		if decision.Blocked {
			releaseAll()
			s.logger.WarnContext(ctx, "Submission blocked by retake window",
				"user_id", user.ID,
				"section", section,
				"rule", decision.Rule,
				"retry_after_minutes", decision.RetryAfterMinutes)
			return nil, &GateBlockedError{
				Section:           section,
				Rule:              decision.Rule,
				Reason:            decision.Reason,
				RetryAfterMinutes: decision.RetryAfterMinutes,
			}
		}
		if decision.Exempt != "" || decision.Rule != "" {
			s.logger.DebugContext(ctx, "Retake window passed",
				"user_id", user.ID, "section", section, "rule", decision.Rule, "exempt", decision.Exempt)
		}
	}
	return releaseAll, nil
}

func (s *gradingService) latestAttempt(ctx context.Context, userID string) (*LastAttempt, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	attempt, err := s.repo.Attempt().GetLatestByUser(tctx, nil, userID)
	if err != nil {
		return nil, NewUpstreamError("latest attempt", err)
	}
	if attempt == nil {
		return nil, nil
	}
	return &LastAttempt{
		Section:     attempt.Section,
		Year:        attempt.Year,
		ReferenceAt: attempt.ReferenceTime(),
	}, nil
}

// ===== SECTION GRADING =====

func (s *gradingService) gradeSection(ctx context.Context, year, section, form string, input Submission) (*gradedSection, error) {
	data := s.repo.ExamData()

	key, err := data.SectionKey(year, section, form)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, NewUpstreamError("load answer key", err)
	}

	spec, ok := ResolveSectionSpec(year, section, key)
	if !ok {
		return nil, ErrExamNotFound
	}

	conv := func(raw int) (models.ScoreConversion, error) {
		hit, err := data.Conversion(year, section, raw)
		if errors.Is(err, repositories.ErrSourceMissing) {
			return models.ScoreConversion{}, nil
		}
		return hit, err
	}

	result, err := GradeSection(spec, key, input, conv)
	if err != nil {
		return nil, NewUpstreamError("score conversion", err)
	}

	stars, err := data.Stars(section, year)
	if err != nil {
		s.logger.WarnContext(ctx, "Star sheet unavailable", "error", err, "section", section)
		stars = nil
	}

	return &gradedSection{
		section: section,
		spec:    spec,
		key:     key,
		input:   input,
		result:  result,
		stars:   BuildStars(year, KeyedQuestions(spec, key), stars),
	}, nil
}

func (s *gradingService) persist(ctx context.Context, user *models.User, year, form string, sections ...*gradedSection) ([]*uint, error) {
	if user == nil {
		return make([]*uint, len(sections)), nil
	}
	reqs := make([]PersistRequest, len(sections))
	for i, g := range sections {
		reqs[i] = PersistRequest{
			UserID:  user.ID,
			Year:    year,
			Section: g.section,
			Form:    form,
			Flow:    models.FlowSection,
			Result:  g.result,
		}
		if g.result.Attempted {
			reqs[i].Items = BuildAttemptItems(g.spec, g.key, g.input)
		}
	}
	return s.persister.PersistAll(ctx, reqs...)
}

// ===== COMBINED TOTAL =====

func (s *gradingService) totalBlock(ctx context.Context, year string, lang, logic *SectionResult, authenticated bool) TotalBlock {
	var block TotalBlock

	bothAttempted := lang.Attempted && logic.Attempted
	if bothAttempted && lang.Std != nil && logic.Std != nil {
		block.StdSum = float64Ptr(round1(*lang.Std + *logic.Std))
	}
	if !authenticated {
		return block
	}

	switch {
	case !bothAttempted:
		block.Note = stringPtr(NoteSingleSectionOnly)
		return block
	case block.StdSum == nil:
		block.Note = stringPtr(NoteStdUnavailable)
		return block
	}

	cuts, err := s.repo.ExamData().RankTable(year)
	if err != nil {
		if errors.Is(err, repositories.ErrSourceMissing) {
			block.Note = stringPtr(NoteRankTableMissing)
			return block
		}
		s.logger.WarnContext(ctx, "Rank table unavailable", "error", err, "year", year)
		block.Note = stringPtr(NoteRankTableIncomplete)
		return block
	}

	approx, ok := ApproximateRank(cuts, *block.StdSum)
	if !ok {
		block.Note = stringPtr(NoteRankTableIncomplete)
		return block
	}
	block.ScoreCutUsed = float64Ptr(approx.ScoreCut)
	block.ExpectedRankApprox = intPtr(approx.Rank)
	block.TotalPctApprox = float64Ptr(approx.Pct)
	if approx.BelowLowestCut {
		block.Note = stringPtr(NoteBelowLowestCut)
	}
	return block
}

// RankApprox is the cumulative rank estimate of a combined standard score.
type RankApprox struct {
	ScoreCut       float64
	Rank           int
	Pct            float64
	BelowLowestCut bool
}

// ApproximateRank picks the highest cut not above sum; below every cut the lowest cut is used.
// N is the largest cumulative rank of the year and Pct the share of candidates ranked below.
func ApproximateRank(cuts []models.RankCut, sum float64) (RankApprox, bool) {
	n := 0
	var valid []models.RankCut
	for _, c := range cuts {
		if math.IsNaN(c.ScoreCut) || math.IsInf(c.ScoreCut, 0) {
			continue
		}
		valid = append(valid, c)
		n = max(n, c.CumRank)
	}
	if len(valid) == 0 || n <= 0 {
		return RankApprox{}, false
	}

	var hit *models.RankCut
	lowest := valid[0]
	for i := range valid {
		c := valid[i]
		if c.ScoreCut < lowest.ScoreCut {
			lowest = c
		}
		if sum >= c.ScoreCut && (hit == nil || c.ScoreCut > hit.ScoreCut) {
			hit = &valid[i]
		}
	}

	out := RankApprox{}
	if hit == nil {
		hit = &lowest
		out.BelowLowestCut = true
	}
	out.ScoreCut = hit.ScoreCut
	out.Rank = hit.CumRank
	out.Pct = round1(float64(n-hit.CumRank) / float64(n) * 100)
	return out, true
}

// ===== REVEAL =====

// RevealAnswers returns the official answers of the requested questions. Ids outside 1..80 and
// duplicates are ignored.
func (s *gradingService) RevealAnswers(ctx context.Context, req *RevealAnswersRequest) (*RevealAnswersResponse, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	req.Section = normalizeToken(req.Section)
	req.Form = normalizeToken(req.Form)

	ids := revealIDs(req.QuestionIDs)
	if len(ids) == 0 {
		return nil, NewValidationError("question_ids", "no question id in 1..80", req.QuestionIDs)
	}

	year := req.Year.String()
	key, err := s.repo.ExamData().SectionKey(year, req.Section, req.Form)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, NewUpstreamError("load answer key", err)
	}

	answers := make(map[string]int, len(ids))
	for _, q := range ids {
		if a, ok := key.Answer(q); ok {
			answers[strconv.Itoa(q)] = a
		}
	}
	if len(answers) == 0 {
		return nil, ErrAnswerNotFound
	}

	s.logger.InfoContext(ctx, "Answers revealed",
		"year", year, "section", req.Section, "form", req.Form, "count", len(answers))

	return &RevealAnswersResponse{
		OK:      true,
		Year:    req.YearEcho(),
		Section: req.Section,
		Form:    req.Form,
		Answers: answers,
	}, nil
}

func revealIDs(raw []interface{}) []int {
	seen := make(map[int]bool)
	var out []int
	for _, v := range raw {
		q, ok := numericID(v)
		if !ok || q < 1 || q > validator.MaxRevealQuestionID || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}

func numericID(v interface{}) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		return t, true
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
	return int(math.Trunc(f)), true
}

// ===== USAGE =====

func (s *gradingService) Usage() *UsageResponse {
	resp := &UsageResponse{OK: true}
	resp.Usage.Multi = UsageExample{
		Method: "POST",
		Body: map[string]interface{}{
			"year":          2025,
			"form":          "odd | even",
			"lang_answers":  map[string]int{"1": 1, "2": 3},
			"logic_answers": map[string]int{"1": 5, "2": 2},
		},
	}
	resp.Usage.Single = UsageExample{
		Method: "POST",
		Body: map[string]interface{}{
			"year":    2025,
			"section": "lang | logic",
			"form":    "odd | even",
			"answers": map[string]int{"1": 1, "2": 3},
		},
	}
	return resp
}

func normalizeToken(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func stringPtr(v string) *string {
	return &v
}
