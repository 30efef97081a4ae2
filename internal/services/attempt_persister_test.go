package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/grading-service/internal/events"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/testutil"
)

// gradedLang grades a 30 question lang sheet where questions 1 and 2 are right and 3 is wrong.
func gradedLang(t *testing.T) PersistRequest {
	t.Helper()
	spec := SectionSpec{Total: 30}
	key := uniformKey(30, 1, nil)
	key.PCorrect[1] = 0.75
	input := Submission{1: 1, 2: 1, 3: 4}
	std, pct := 61.2, 83.5

	result, err := GradeSection(spec, key, input, func(int) (models.ScoreConversion, error) {
		return models.ScoreConversion{Std: &std, Pct: &pct}, nil
	})
	require.NoError(t, err)

	return PersistRequest{
		UserID:  "u1",
		Year:    "2025",
		Section: models.SectionLang,
		Form:    models.FormOdd,
		Flow:    models.FlowSection,
		Result:  result,
		Items:   BuildAttemptItems(spec, key, input),
	}
}

func TestAttemptPersisterCurrentSchema(t *testing.T) {
	f := newFixture(t, testutil.CurrentSchema)
	req := gradedLang(t)

	id, err := f.persister.Persist(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, id)

	var attempt models.ExamAttempt
	require.NoError(t, f.db.Preload("Items").First(&attempt, *id).Error)
	assert.Equal(t, "u1", *attempt.UserID)
	assert.Equal(t, 2, *attempt.RawScore)
	assert.Equal(t, 30, *attempt.OfficialTotal)
	assert.InDelta(t, 61.2, *attempt.StandardScore, 1e-9)
	assert.False(t, attempt.IsDeleted)

	var meta models.AttemptMeta
	require.NoError(t, json.Unmarshal(attempt.Meta, &meta))
	assert.Equal(t, models.FlowSection, meta.Flow)
	assert.Equal(t, 3, meta.AttemptedCount)
	assert.Len(t, meta.Wrong, 28)

	require.Len(t, attempt.Items, 30)
	for _, item := range attempt.Items {
		assert.Equal(t, "u1", *item.UserID)
		assert.Equal(t, *id, item.AttemptID)
	}
	assert.InDelta(t, 0.75, *attempt.Items[0].PCorrect, 1e-9)

	var anon models.AnonAttempt
	require.NoError(t, f.db.First(&anon).Error)
	assert.Equal(t, 2, anon.RawScore)
	assert.InDelta(t, 83.5, *anon.Percentile, 1e-9)

	published := f.publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, testTopic, published[0].Topic)
	assert.Equal(t, events.EventTypeAttemptGraded, published[0].Event.Type)
	data, ok := published[0].Event.Data.(events.AttemptGradedData)
	require.True(t, ok)
	assert.Equal(t, *id, *data.AttemptID)
	assert.Equal(t, 2, data.RawScore)
}

func TestAttemptPersisterLegacySchema(t *testing.T) {
	f := newFixture(t, testutil.LegacySchema)

	id, err := f.persister.Persist(context.Background(), gradedLang(t))
	require.NoError(t, err)
	require.NotNil(t, id)

	assert.EqualValues(t, 1, f.count(t, &models.ExamAttempt{}))
	assert.EqualValues(t, 30, f.count(t, &models.ExamAttemptItem{}))
	assert.EqualValues(t, 1, f.count(t, &models.AnonAttempt{}), "anon row written without percentile")

	var row struct {
		UserID string
		Year   string
	}
	require.NoError(t, f.db.Table("exam_attempts").Select("user_id, year").Where("id = ?", *id).Scan(&row).Error)
	assert.Equal(t, "u1", row.UserID)
}

func TestAttemptPersisterSkipsUnattempted(t *testing.T) {
	f := newFixture(t, testutil.CurrentSchema)
	req := gradedLang(t)
	req.Result = &SectionResult{Total: 30}

	id, err := f.persister.Persist(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Zero(t, f.count(t, &models.ExamAttempt{}))
	assert.Empty(t, f.publisher.GetPublishedEvents())
}

func TestAttemptPersisterFailures(t *testing.T) {
	// items table lacking a required column
	brokenItems := append([]string{}, testutil.CurrentSchema...)
	brokenItems[1] = `CREATE TABLE exam_attempt_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL,
		item_no INTEGER NOT NULL
	)`

	tests := []struct {
		name    string
		ddl     []string
		timeout time.Duration
		check   func(t *testing.T, err error)
	}{
		{
			name:    "required item column missing",
			ddl:     brokenItems,
			timeout: time.Second,
			check: func(t *testing.T, err error) {
				var pe *PersistenceError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, models.SectionLang, pe.Section)
			},
		},
		{
			name:    "deadline exceeded",
			ddl:     testutil.CurrentSchema,
			timeout: time.Nanosecond,
			check: func(t *testing.T, err error) {
				var ue *UpstreamError
				require.ErrorAs(t, err, &ue)
				assert.True(t, ue.Timeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.ddl)
			p := NewAttemptPersister(f.db, f.repo, f.publisher, testTopic, f.logger, tt.timeout)

			id, err := p.Persist(context.Background(), gradedLang(t))
			assert.Nil(t, id)
			require.Error(t, err)
			tt.check(t, err)

			assert.Zero(t, f.count(t, &models.ExamAttempt{}), "attempt rolled back with its items")
			assert.Empty(t, f.publisher.GetPublishedEvents())
		})
	}
}

func TestAttemptPersisterPersistAll(t *testing.T) {
	gradedLogic := func(t *testing.T) PersistRequest {
		req := gradedLang(t)
		req.Section = models.SectionLogic
		return req
	}
	unattempted := gradedLang(t)
	unattempted.Result = &SectionResult{Total: 30}

	t.Run("stores every attempted request", func(t *testing.T) {
		f := newFixture(t, testutil.CurrentSchema)
		ids, err := f.persister.PersistAll(context.Background(), gradedLang(t), unattempted, gradedLogic(t))
		require.NoError(t, err)
		require.Len(t, ids, 3)
		require.NotNil(t, ids[0])
		assert.Nil(t, ids[1])
		require.NotNil(t, ids[2])
		assert.NotEqual(t, *ids[0], *ids[2])
		assert.EqualValues(t, 2, f.count(t, &models.ExamAttempt{}))
		assert.EqualValues(t, 60, f.count(t, &models.ExamAttemptItem{}))
		assert.Len(t, f.publisher.GetPublishedEvents(), 2)
	})

	t.Run("one failure rolls back all", func(t *testing.T) {
		f := newFixture(t, testutil.CurrentSchema)
		require.NoError(t, f.db.Exec(`CREATE TRIGGER reject_logic BEFORE INSERT ON exam_attempts
			WHEN NEW.section = 'logic' BEGIN SELECT RAISE(ABORT, 'logic rejected'); END`).Error)

		ids, err := f.persister.PersistAll(context.Background(), gradedLang(t), gradedLogic(t))
		assert.Nil(t, ids)
		var pe *PersistenceError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, models.SectionLogic, pe.Section)

		assert.Zero(t, f.count(t, &models.ExamAttempt{}))
		assert.Zero(t, f.count(t, &models.ExamAttemptItem{}))
		assert.Zero(t, f.count(t, &models.AnonAttempt{}))
		assert.Empty(t, f.publisher.GetPublishedEvents())
	})
}

func TestAttemptPersisterSideWritesAreBestEffort(t *testing.T) {
	f := newFixture(t, testutil.CurrentSchema)
	require.NoError(t, f.db.Exec("DROP TABLE exam_attempts_anon").Error)
	f.publisher.FailWith(errors.New("broker down"))

	id, err := f.persister.Persist(context.Background(), gradedLang(t))
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.EqualValues(t, 1, f.count(t, &models.ExamAttempt{}))
}

func TestAttemptPersisterSubjectFlowSkipsAggregates(t *testing.T) {
	f := newFixture(t, testutil.CurrentSchema)
	req := gradedLang(t)
	req.Flow = models.FlowStaffSubject
	req.Section = "humanities"
	req.Form = models.FormNone
	req.ActorID = "ta1"

	id, err := f.persister.Persist(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Zero(t, f.count(t, &models.AnonAttempt{}))
	assert.Len(t, f.publisher.GetPublishedEvents(), 1)
}

func TestStatsForm(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"odd", "odd"},
		{"even", "even"},
		{"na", "na"},
		{"", "na"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statsForm(tt.in))
	}
}

func TestNewAttemptPersisterDefaultTimeout(t *testing.T) {
	p := NewAttemptPersister(nil, nil, nil, "", slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	assert.Equal(t, DefaultUpstreamTimeout, p.timeout)
}
