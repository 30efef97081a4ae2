package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/testutil"
)

var (
	staffAdmin = &models.User{ID: "admin1", Role: models.RoleAdmin}
	staffTA    = &models.User{ID: "ta1", Role: models.RoleAssistant, AssistantSubject: "math"}
)

func newAttemptFixture(t *testing.T) (*fixture, *attemptService) {
	t.Helper()
	f := newFixture(t, testutil.CurrentSchema)
	svc := NewAttemptService(f.repo, f.logger, f.validator, time.Second).(*attemptService)
	svc.now = func() time.Time { return gradeNow }
	return f, svc
}

func TestAttemptListOwn(t *testing.T) {
	f, svc := newAttemptFixture(t)
	older := f.seedAttempt(t, "u1", "2025", "lang", gradeNow.Add(-2*time.Hour))
	newer := f.seedAttempt(t, "u1", "2025", "logic", gradeNow.Add(-time.Hour))
	f.seedAttempt(t, "u2", "2025", "lang", gradeNow)
	deleted := f.seedAttempt(t, "u1", "2024", "lang", gradeNow.Add(-30*time.Minute))
	require.NoError(t, f.db.Model(deleted).Update("is_deleted", true).Error)

	resp, err := svc.ListOwn(context.Background(), veteran("u1", gradeNow), 0)
	require.NoError(t, err)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, newer.ID, resp.Attempts[0].ID)
	assert.Equal(t, older.ID, resp.Attempts[1].ID)

	resp, err = svc.ListOwn(context.Background(), veteran("u1", gradeNow), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)

	resp, err = svc.ListOwn(context.Background(), veteran("nobody", gradeNow), 0)
	require.NoError(t, err)
	assert.NotNil(t, resp.Attempts)
	assert.Empty(t, resp.Attempts)

	_, err = svc.ListOwn(context.Background(), nil, 0)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAttemptGetOwn(t *testing.T) {
	f, svc := newAttemptFixture(t)
	mine := f.seedAttempt(t, "u1", "2025", "lang", gradeNow)
	theirs := f.seedAttempt(t, "u2", "2025", "lang", gradeNow)
	gone := f.seedAttempt(t, "u1", "2025", "logic", gradeNow)
	require.NoError(t, f.db.Model(gone).Update("is_deleted", true).Error)

	tests := []struct {
		name    string
		id      uint
		user    *models.User
		wantErr error
	}{
		{name: "own attempt", id: mine.ID, user: veteran("u1", gradeNow)},
		{name: "another user's attempt", id: theirs.ID, user: veteran("u1", gradeNow), wantErr: ErrAttemptNotFound},
		{name: "deleted attempt", id: gone.ID, user: veteran("u1", gradeNow), wantErr: ErrAttemptNotFound},
		{name: "missing attempt", id: 9999, user: veteran("u1", gradeNow), wantErr: ErrAttemptNotFound},
		{name: "anonymous", id: mine.ID, wantErr: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.GetOwn(context.Background(), tt.id, tt.user)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, got.ID)
		})
	}
}

func TestAttemptMarkViewed(t *testing.T) {
	f, svc := newAttemptFixture(t)
	a := f.seedAttempt(t, "u1", "2025", "lang", gradeNow.Add(-time.Hour))
	b := f.seedAttempt(t, "u1", "2025", "logic", gradeNow.Add(-time.Hour))
	other := f.seedAttempt(t, "u2", "2025", "lang", gradeNow)

	resp, err := svc.MarkViewed(context.Background(), &MarkViewedRequest{
		AttemptID:  &a.ID,
		AttemptIDs: []uint{b.ID, a.ID, other.ID},
	}, veteran("u1", gradeNow))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Updated)
	assert.Equal(t, []uint{a.ID, b.ID}, resp.IDs)

	var untouched models.ExamAttempt
	require.NoError(t, f.db.First(&untouched, other.ID).Error)
	assert.Nil(t, untouched.ViewedAt, "other users' attempts stay untouched")
	for _, id := range []uint{a.ID, b.ID} {
		var viewed models.ExamAttempt
		require.NoError(t, f.db.First(&viewed, id).Error)
		require.NotNil(t, viewed.ViewedAt)
		assert.True(t, viewed.ViewedAt.Equal(gradeNow))
	}

	_, err = svc.MarkViewed(context.Background(), &MarkViewedRequest{}, veteran("u1", gradeNow))
	var ve ValidationErrors
	assert.ErrorAs(t, err, &ve)

	_, err = svc.MarkViewed(context.Background(), &MarkViewedRequest{AttemptID: &a.ID}, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAttemptListForUser(t *testing.T) {
	f, svc := newAttemptFixture(t)
	f.seedAttempt(t, "u1", "2025", "lang", gradeNow.Add(-time.Hour))
	deleted := f.seedAttempt(t, "u1", "2025", "logic", gradeNow)
	require.NoError(t, f.db.Model(deleted).Update("is_deleted", true).Error)

	tests := []struct {
		name  string
		staff *models.User
		query *AttemptListQuery
		total int
		check func(t *testing.T, err error)
	}{
		{name: "admin", staff: staffAdmin, query: &AttemptListQuery{UserID: "u1"}, total: 1},
		{name: "assistant with deleted", staff: staffTA, query: &AttemptListQuery{UserID: "u1", IncludeDeleted: true}, total: 2},
		{
			name: "student", staff: veteran("u1", gradeNow), query: &AttemptListQuery{UserID: "u1"},
			check: func(t *testing.T, err error) {
				var pe *PermissionError
				assert.ErrorAs(t, err, &pe)
			},
		},
		{
			name: "missing user id", staff: staffAdmin, query: &AttemptListQuery{},
			check: func(t *testing.T, err error) {
				var ve ValidationErrors
				assert.ErrorAs(t, err, &ve)
			},
		},
		{
			name: "limit too large", staff: staffAdmin, query: &AttemptListQuery{UserID: "u1", Limit: 501},
			check: func(t *testing.T, err error) {
				var ve ValidationErrors
				assert.ErrorAs(t, err, &ve)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.ListForUser(context.Background(), tt.query, tt.staff)
			if tt.check != nil {
				require.Error(t, err)
				tt.check(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.total, resp.Total)
		})
	}
}

func TestAttemptSoftDelete(t *testing.T) {
	f, svc := newAttemptFixture(t)
	attempt := f.seedAttempt(t, "u1", "2025", "lang", gradeNow.Add(-time.Hour))

	_, err := svc.SoftDelete(context.Background(), attempt.ID, veteran("u1", gradeNow))
	var pe *PermissionError
	require.ErrorAs(t, err, &pe)

	resp, err := svc.SoftDelete(context.Background(), attempt.ID, staffTA)
	require.NoError(t, err)
	assert.True(t, resp.Attempt.IsDeleted)
	require.NotNil(t, resp.Attempt.DeletedAt)
	assert.True(t, resp.Attempt.DeletedAt.Equal(gradeNow))

	again, err := svc.SoftDelete(context.Background(), attempt.ID, staffAdmin)
	require.NoError(t, err)
	assert.True(t, again.Attempt.IsDeleted)

	_, err = svc.SoftDelete(context.Background(), 424242, staffAdmin)
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	_, err = svc.SoftDelete(context.Background(), 0, staffAdmin)
	var ve ValidationErrors
	assert.ErrorAs(t, err, &ve)

	_, err = svc.GetOwn(context.Background(), attempt.ID, veteran("u1", gradeNow))
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}
