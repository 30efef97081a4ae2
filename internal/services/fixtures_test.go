package services

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/grading-service/internal/events"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
	"github.com/SAP-F-2025/grading-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/grading-service/internal/testutil"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

const testTopic = "exam.attempt_graded"

// fakeExamData serves keys, conversions, ranks, stars and subject rows from maps.
type fakeExamData struct {
	// keys by year/section, conv by year/section/raw, ranks by year, stars by section/year
	keys     map[string]*models.SectionKey
	conv     map[string]models.ScoreConversion
	ranks    map[string][]models.RankCut
	stars    map[string]map[int]int
	subjects map[string][]models.SubjectKeyRow

	convErr    error
	rankErr    error
	subjectErr error
}

func newFakeExamData() *fakeExamData {
	return &fakeExamData{
		keys:     map[string]*models.SectionKey{},
		conv:     map[string]models.ScoreConversion{},
		ranks:    map[string][]models.RankCut{},
		stars:    map[string]map[int]int{},
		subjects: map[string][]models.SubjectKeyRow{},
	}
}

func (f *fakeExamData) SectionKey(year, section, form string) (*models.SectionKey, error) {
	key, ok := f.keys[year+"/"+section]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return key, nil
}

func (f *fakeExamData) Conversion(year, section string, raw int) (models.ScoreConversion, error) {
	if f.convErr != nil {
		return models.ScoreConversion{}, f.convErr
	}
	return f.conv[fmt.Sprintf("%s/%s/%d", year, section, raw)], nil
}

func (f *fakeExamData) RankTable(year string) ([]models.RankCut, error) {
	if f.rankErr != nil {
		return nil, f.rankErr
	}
	return f.ranks[year], nil
}

func (f *fakeExamData) Stars(section, year string) (map[int]int, error) {
	return f.stars[section+"/"+year], nil
}

func (f *fakeExamData) SubjectRows(subject string, startQ, endQ int) ([]models.SubjectKeyRow, error) {
	if f.subjectErr != nil {
		return nil, f.subjectErr
	}
	var out []models.SubjectKeyRow
	for _, row := range f.subjects[subject] {
		if row.QuestionID >= startQ && row.QuestionID <= endQ {
			out = append(out, row)
		}
	}
	return out, nil
}

type stubUsers struct{ repositories.UserRepository }

type fixture struct {
	db        *gorm.DB
	repo      repositories.Repository
	data      *fakeExamData
	publisher *events.MockEventPublisher
	persister *AttemptPersister
	logger    *slog.Logger
	validator *validator.Validator
}

func newFixture(t *testing.T, ddl []string) *fixture {
	t.Helper()

	db := testutil.NewSQLiteDB(t, ddl)
	data := newFakeExamData()
	repo := postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{
		DB:       db,
		ExamData: data,
		User:     stubUsers{},
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := events.NewMockEventPublisher()

	return &fixture{
		db:        db,
		repo:      repo,
		data:      data,
		publisher: publisher,
		persister: NewAttemptPersister(db, repo, publisher, testTopic, logger, time.Second),
		logger:    logger,
		validator: validator.New(),
	}
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (f *fixture) seedAttempt(t *testing.T, userID, year, section string, createdAt time.Time) *models.ExamAttempt {
	t.Helper()
	attempt := &models.ExamAttempt{
		UserID:    &userID,
		Year:      year,
		Section:   section,
		Form:      models.FormOdd,
		RawScore:  intPtr(10),
		CreatedAt: createdAt,
	}
	if err := f.db.Omit("Items").Create(attempt).Error; err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	return attempt
}

func veteran(id string, now time.Time) *models.User {
	return &models.User{ID: id, Role: models.RoleStudent, CreatedAt: now.Add(-90 * 24 * time.Hour)}
}
