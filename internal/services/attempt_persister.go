package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/grading-service/internal/events"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

const DefaultUpstreamTimeout = 3 * time.Second

// PersistRequest is one graded section ready to be stored for UserID.
type PersistRequest struct {
	UserID  string
	Year    string
	Section string
	Form    string
	Flow    string
	Result  *SectionResult
	Items   []models.ExamAttemptItem

	// staff and subject flows
	ActorID string
	StartQ  int
	EndQ    int
}

// AttemptPersister stores attempts and their items. The attempt and items share one
// transaction and failures are returned; the anonymous row, item counters and the graded
// event are best effort.
type AttemptPersister struct {
	db        *gorm.DB
	repo      repositories.Repository
	publisher events.EventPublisher
	topic     string
	logger    *slog.Logger
	timeout   time.Duration
}

func NewAttemptPersister(db *gorm.DB, repo repositories.Repository, publisher events.EventPublisher, topic string, logger *slog.Logger, timeout time.Duration) *AttemptPersister {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &AttemptPersister{
		db:        db,
		repo:      repo,
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		timeout:   timeout,
	}
}

// Persist returns the new attempt id, or nil when the section was not attempted.
func (p *AttemptPersister) Persist(ctx context.Context, req PersistRequest) (*uint, error) {
	ids, err := p.PersistAll(ctx, req)
	if err != nil {
		return nil, err
	}
	return ids[0], nil
}

// PersistAll stores every attempted request in one transaction, so either all of them are
// written or none is. ids[i] is nil when reqs[i] was not attempted.
func (p *AttemptPersister) PersistAll(ctx context.Context, reqs ...PersistRequest) ([]*uint, error) {
	ids := make([]*uint, len(reqs))
	attempts := make([]*models.ExamAttempt, len(reqs))
	pending := false
	for i, req := range reqs {
		if req.Result == nil || !req.Result.Attempted {
			continue
		}
		attempt, err := buildAttempt(req)
		if err != nil {
			return nil, &PersistenceError{Section: req.Section, Err: err}
		}
		attempts[i] = attempt
		pending = true
	}
	if !pending {
		return ids, nil
	}

	txCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var failed string
	err := p.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		for i, attempt := range attempts {
			if attempt == nil {
				continue
			}
			failed = reqs[i].Section
			if err := p.insertAttempt(txCtx, tx, attempt); err != nil {
				return err
			}
			items := make([]models.ExamAttemptItem, len(reqs[i].Items))
			for j, item := range reqs[i].Items {
				item.ID = 0
				item.AttemptID = attempt.ID
				item.UserID = attempt.UserID
				items[j] = item
			}
			if err := p.insertItems(txCtx, tx, items); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(txCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewUpstreamError("persist attempt", err)
		}
		return nil, &PersistenceError{Section: failed, Err: err}
	}

	for i, attempt := range attempts {
		if attempt == nil {
			continue
		}
		req := reqs[i]
		p.logger.InfoContext(ctx, "Attempt persisted",
			"attempt_id", attempt.ID,
			"user_id", req.UserID,
			"year", req.Year,
			"section", req.Section,
			"flow", req.Flow,
			"items", len(req.Items))

		p.repo.Attempt().InvalidateCache(ctx, attempt.ID, req.UserID)

		// aggregate statistics only cover the lang/logic exams
		if req.Flow == models.FlowSection {
			p.writeAnonAttempt(ctx, req)
			p.applyItemStats(ctx, req)
		}
		p.publishGraded(ctx, req, attempt.ID)

		id := attempt.ID
		ids[i] = &id
	}
	return ids, nil
}

func buildAttempt(req PersistRequest) (*models.ExamAttempt, error) {
	res := req.Result
	meta, err := json.Marshal(models.AttemptMeta{
		Flow:           req.Flow,
		Attempted:      res.Attempted,
		AttemptedCount: res.AttemptedCount,
		AssumedIndep:   res.AssumedIndep,
		RawPassage:     res.RawPassage,
		TotalPassage:   res.TotalPassage,
		Wrong:          res.Wrong,
		StartQ:         req.StartQ,
		EndQ:           req.EndQ,
		ActorID:        req.ActorID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode attempt meta: %w", err)
	}

	attempt := &models.ExamAttempt{
		Year:          req.Year,
		Section:       req.Section,
		Form:          req.Form,
		RawScore:      res.Raw,
		OfficialTotal: intPtr(res.Total),
		StandardScore: res.Std,
		Percentile:    res.Pct,
		Meta:          datatypes.JSON(meta),
		CreatedAt:     time.Now().UTC(),
	}
	if req.UserID != "" {
		uid := req.UserID
		attempt.UserID = &uid
	}
	return attempt, nil
}

// insertAttempt runs every try in its own savepoint so a rejected insert does not poison
// the outer transaction.
func (p *AttemptPersister) insertAttempt(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	fallback := repositories.ColumnFallback{Optional: repositories.AttemptOptionalColumns}
	return fallback.Run(func(omit []string) error {
		if len(omit) > 0 {
			p.logger.WarnContext(ctx, "Retrying attempt insert without columns", "omit", omit)
		}
		return tx.Transaction(func(sp *gorm.DB) error {
			attempt.ID = 0
			return p.repo.Attempt().Create(ctx, sp, attempt, omit...)
		})
	})
}

func (p *AttemptPersister) insertItems(ctx context.Context, tx *gorm.DB, items []models.ExamAttemptItem) error {
	if len(items) == 0 {
		return nil
	}
	fallback := repositories.ColumnFallback{Optional: repositories.AttemptItemOptionalColumns}
	return fallback.Run(func(omit []string) error {
		if len(omit) > 0 {
			p.logger.WarnContext(ctx, "Retrying item insert without columns", "omit", omit)
		}
		batch := make([]models.ExamAttemptItem, len(items))
		copy(batch, items)
		return tx.Transaction(func(sp *gorm.DB) error {
			return p.repo.Attempt().CreateItems(ctx, sp, batch, omit...)
		})
	})
}

func (p *AttemptPersister) writeAnonAttempt(ctx context.Context, req PersistRequest) {
	res := req.Result
	if res.Raw == nil {
		return
	}

	sideCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	fallback := repositories.ColumnFallback{Optional: repositories.AnonAttemptOptionalColumns}
	err := fallback.Run(func(omit []string) error {
		row := &models.AnonAttempt{
			Year:          req.Year,
			Section:       req.Section,
			Form:          req.Form,
			RawScore:      *res.Raw,
			StandardScore: res.Std,
			Percentile:    res.Pct,
			CreatedAt:     time.Now().UTC(),
		}
		return p.repo.AnonAttempt().Create(sideCtx, nil, row, omit...)
	})
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to write anonymous attempt",
			"error", err,
			"year", req.Year,
			"section", req.Section)
	}
}

func (p *AttemptPersister) applyItemStats(ctx context.Context, req PersistRequest) {
	year, ok := BaseYear(req.Year)
	if !ok || len(req.Items) == 0 {
		return
	}

	stats := make([]repositories.ItemStat, 0, len(req.Items))
	for _, item := range req.Items {
		stats = append(stats, repositories.ItemStat{
			Year:      year,
			Section:   req.Section,
			Form:      statsForm(req.Form),
			ItemNo:    item.ItemNo,
			IsCorrect: item.IsCorrect != nil && *item.IsCorrect,
		})
	}

	sideCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.repo.ItemStats().Apply(sideCtx, nil, stats); err != nil {
		if repositories.IsCapabilityMissing(err) {
			p.logger.DebugContext(ctx, "Item stats not available", "error", err)
			return
		}
		p.logger.WarnContext(ctx, "Failed to apply item stats",
			"error", err,
			"year", req.Year,
			"section", req.Section)
	}
}

// statsForm folds anything but odd and even into "na"
func statsForm(form string) string {
	switch form {
	case models.FormOdd, models.FormEven:
		return form
	}
	return models.FormNone
}

func (p *AttemptPersister) publishGraded(ctx context.Context, req PersistRequest, attemptID uint) {
	if p.publisher == nil || p.topic == "" {
		return
	}

	res := req.Result
	raw := 0
	if res.Raw != nil {
		raw = *res.Raw
	}
	id := attemptID
	event := events.NewEvent(events.EventTypeAttemptGraded, events.AttemptGradedData{
		AttemptID:     &id,
		Flow:          req.Flow,
		Year:          req.Year,
		Section:       req.Section,
		Form:          req.Form,
		RawScore:      raw,
		OfficialTotal: res.Total,
		StandardScore: res.Std,
		Percentile:    res.Pct,
		WrongItems:    res.Wrong,
	})

	sideCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.publisher.Publish(sideCtx, p.topic, event); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish graded event",
			"error", err,
			"attempt_id", attemptID,
			"topic", p.topic)
	}
}
