package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpilot/internal/domain"
)

func TestBusinessesFindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	owner := uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "owner_id", "name", "status", "monthly_price", "closure_reason", "created_at", "updated_at"}).
		AddRow(id, owner, "Acme Fitness", "active", 49.0, "", now.AddDate(0, 0, -20), now)

	mock.ExpectQuery("SELECT (.+) FROM businesses WHERE id").
		WithArgs(id).
		WillReturnRows(rows)

	b, err := NewBusinesses(db).FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Acme Fitness", b.Name)
	assert.Equal(t, domain.BusinessActive, b.Status)
	assert.Equal(t, 20, b.AgeDays(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusinessesFindByIDMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM businesses WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewBusinesses(db).FindByID(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBusinessesPartialUpdateDeterministicOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	// Columns sorted: closure_reason before status.
	mock.ExpectExec(`UPDATE businesses SET closure_reason = \$1, status = \$2, updated_at = NOW\(\) WHERE id = \$3`).
		WithArgs("underperforming", "closed", id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewBusinesses(db).Update(context.Background(), id, map[string]interface{}{
		"status":         "closed",
		"closure_reason": "underperforming",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusinessesUpdateRejectsEmptyFields(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewBusinesses(db).Update(context.Background(), uuid.New(), nil)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestBusinessesUpdateMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE businesses SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewBusinesses(db).Update(context.Background(), id, map[string]interface{}{"status": "paused"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBusinessesFindActiveRequiresRecentMetrics(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Now().AddDate(0, 0, -14)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "owner_id", "name", "status", "monthly_price", "closure_reason", "created_at", "updated_at"}).
		AddRow(uuid.New(), uuid.New(), "Acme", "active", 49.0, "", now, now)

	mock.ExpectQuery("SELECT (.+) FROM businesses b").
		WithArgs(since).
		WillReturnRows(rows)

	out, err := NewBusinesses(db).FindActive(context.Background(), since)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignsFindByBusiness(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	bizID := uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "business_id", "platform", "external_id", "name", "status", "daily_budget", "target_cpa", "created_at", "updated_at"}).
		AddRow(uuid.New(), bizID, "google", "g-123", "Search", "active", 100.0, 50.0, now, now).
		AddRow(uuid.New(), bizID, "meta", "m-456", "Social", "active", 60.0, 40.0, now, now)

	mock.ExpectQuery("SELECT (.+) FROM campaigns").
		WithArgs(bizID, "active").
		WillReturnRows(rows)

	out, err := NewCampaigns(db).FindByBusiness(context.Background(), bizID, domain.CampaignActive)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "google", out[0].Platform)
	assert.Equal(t, "m-456", out[1].ExternalID)
}

func TestCampaignsInsertAssignsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO campaigns").
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := &domain.Campaign{
		BusinessID:  uuid.New(),
		Platform:    "google",
		Name:        "Launch",
		Status:      domain.CampaignActive,
		DailyBudget: 100,
	}
	require.NoError(t, NewCampaigns(db).Insert(context.Background(), c))
	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.False(t, c.CreatedAt.IsZero())
}

func TestMetricsSumWindow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	campaignID := uuid.New()
	from := time.Now().AddDate(0, 0, -14)
	to := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM campaign_metrics").
		WithArgs(campaignID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"impressions", "clicks", "conversions", "spend"}).
			AddRow(10000, 300, 12, 450.0))

	m, err := NewMetrics(db).SumWindow(context.Background(), campaignID, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), m.Impressions)
	assert.Equal(t, int64(300), m.Clicks)
	assert.Equal(t, int64(12), m.Conversions)
	assert.InDelta(t, 450.0, m.Spend, 0.001)
}

func TestMetricsInsertUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	campaignID := uuid.New()
	mock.ExpectExec("INSERT INTO campaign_metrics").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewMetrics(db).Insert(context.Background(), campaignID, time.Now(),
		domain.RawMetrics{Impressions: 500, Clicks: 20, Conversions: 1, Spend: 30})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
