package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/billsync/internal/app/service/profile"
	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/internal/platform/db/dbtest"
	"github.com/fatflowers/billsync/pkg/config"
	"github.com/fatflowers/billsync/pkg/types"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	gdb := dbtest.Open(t)
	log := zap.NewNop().Sugar()
	profiles := profile.NewService(gdb, log, profile.NewPlanResolver(&config.Config{}))
	return NewService(gdb, log, profiles), gdb
}

func ptr[T any](v T) *T { return &v }

func proRecord(userID, providerID string, created int64) *models.Subscription {
	start := time.Unix(1700000000, 0).UTC()
	end := start.AddDate(0, 1, 0)
	return &models.Subscription{
		UserID:                 userID,
		ProviderCustomerID:     "cus_1",
		ProviderSubscriptionID: ptr(providerID),
		PriceID:                "price_pro_monthly",
		Status:                 types.SubscriptionStatusActive,
		CurrentPeriodStart:     &start,
		CurrentPeriodEnd:       &end,
		LastEventCreated:       created,
	}
}

func countRows(t *testing.T, gdb *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func planOf(t *testing.T, gdb *gorm.DB, userID string) types.Plan {
	t.Helper()
	var p models.Profile
	require.NoError(t, gdb.Where("id = ?", userID).First(&p).Error)
	return p.SubscriptionPlan
}

func TestUpsertSubscription_Idempotent(t *testing.T) {
	s, gdb := newTestService(t)
	ctx := WithEventID(context.Background(), "evt_1")
	dbtest.SeedProfile(t, gdb, "u1")

	first, err := s.UpsertSubscription(ctx, proRecord("u1", "sub_1", 100), types.SubscriptionChangeReasonCheckoutCompleted)
	require.NoError(t, err)
	second, err := s.UpsertSubscription(ctx, proRecord("u1", "sub_1", 100), types.SubscriptionChangeReasonCheckoutCompleted)
	require.NoError(t, err)

	require.Equal(t, int64(1), countRows(t, gdb, &models.Subscription{}, "user_id = ?", "u1"))
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.PriceID, second.PriceID)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.CurrentPeriodEnd.Unix(), second.CurrentPeriodEnd.Unix())
	require.Equal(t, types.PlanPro, planOf(t, gdb, "u1"))

	var logs []*models.SubscriptionLog
	require.NoError(t, gdb.Where("user_id = ?", "u1").Find(&logs).Error)
	require.Len(t, logs, 2)
	require.Equal(t, "evt_1", logs[0].EventID)
	require.Equal(t, types.PlanPro, logs[0].Plan)
}

func TestUpsertSubscription_OneRowPerUser(t *testing.T) {
	s, gdb := newTestService(t)
	ctx := context.Background()
	dbtest.SeedProfile(t, gdb, "u1")

	_, err := s.UpsertSubscription(ctx, proRecord("u1", "sub_1", 100), types.SubscriptionChangeReasonCheckoutCompleted)
	require.NoError(t, err)

	next := proRecord("u1", "sub_2", 200)
	next.PriceID = "price_basic_monthly"
	got, err := s.UpsertSubscription(ctx, next, types.SubscriptionChangeReasonCheckoutCompleted)
	require.NoError(t, err)
	require.Equal(t, "sub_2", *got.ProviderSubscriptionID)

	require.Equal(t, int64(1), countRows(t, gdb, &models.Subscription{}, "user_id = ?", "u1"))
	require.Equal(t, types.PlanBasic, planOf(t, gdb, "u1"))
}

func TestUpsertSubscription_StaleEventRejected(t *testing.T) {
	s, gdb := newTestService(t)
	ctx := context.Background()
	dbtest.SeedProfile(t, gdb, "u1")

	newer := proRecord("u1", "sub_1", 200)
	_, err := s.UpsertSubscription(ctx, newer, types.SubscriptionChangeReasonProviderUpdated)
	require.NoError(t, err)

	older := proRecord("u1", "sub_1", 100)
	older.Status = types.SubscriptionStatusIncomplete
	_, err = s.UpsertSubscription(ctx, older, types.SubscriptionChangeReasonProviderUpdated)
	require.ErrorIs(t, err, ErrStaleEvent)

	got, err := s.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, got.Status)
	require.Equal(t, int64(200), got.LastEventCreated)
	require.Equal(t, int64(1), countRows(t, gdb, &models.SubscriptionLog{}, "user_id = ?", "u1"))
}

func TestUpsertSubscription_RequiresUserID(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.UpsertSubscription(context.Background(), &models.Subscription{}, types.SubscriptionChangeReasonCheckoutCompleted)
	require.Error(t, err)
}

func TestUpdateByProviderSubscriptionID_MissingRow(t *testing.T) {
	s, gdb := newTestService(t)

	got, err := s.UpdateByProviderSubscriptionID(context.Background(), "sub_unknown", &SubscriptionPatch{
		Status:       ptr(types.SubscriptionStatusPastDue),
		EventCreated: 100,
	}, types.SubscriptionChangeReasonProviderUpdated)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, int64(0), countRows(t, gdb, &models.Subscription{}, "1 = 1"))
}

func TestUpdateByProviderSubscriptionID_AppliesPatch(t *testing.T) {
	s, gdb := newTestService(t)
	ctx := context.Background()
	dbtest.SeedProfile(t, gdb, "u1")
	_, err := s.UpsertSubscription(ctx, proRecord("u1", "sub_1", 100), types.SubscriptionChangeReasonCheckoutCompleted)
	require.NoError(t, err)

	got, err := s.UpdateByProviderSubscriptionID(ctx, "sub_1", &SubscriptionPatch{
		PriceID:           ptr("price_enterprise_yearly"),
		CancelAtPeriodEnd: ptr(true),
		EventCreated:      150,
	}, types.SubscriptionChangeReasonProviderUpdated)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "u1", got.UserID)
	require.Equal(t, "price_enterprise_yearly", got.PriceID)
	require.True(t, got.CancelAtPeriodEnd)
	require.Equal(t, types.SubscriptionStatusActive, got.Status)
	require.Equal(t, int64(150), got.LastEventCreated)
	require.Equal(t, types.PlanEnterprise, planOf(t, gdb, "u1"))

	got, err = s.UpdateByProviderSubscriptionID(ctx, "sub_1", &SubscriptionPatch{
		Status:       ptr(types.SubscriptionStatusUnpaid),
		EventCreated: 120,
	}, types.SubscriptionChangeReasonProviderUpdated)
	require.ErrorIs(t, err, ErrStaleEvent)
	require.Nil(t, got)
}

func TestCancelByProviderSubscriptionID(t *testing.T) {
	s, gdb := newTestService(t)
	ctx := context.Background()
	dbtest.SeedProfile(t, gdb, "u1")
	_, err := s.UpsertSubscription(ctx, proRecord("u1", "sub_1", 300), types.SubscriptionChangeReasonCheckoutCompleted)
	require.NoError(t, err)
	require.Equal(t, types.PlanPro, planOf(t, gdb, "u1"))

	// an older deletion still cancels and keeps the newer event time
	got, err := s.CancelByProviderSubscriptionID(ctx, "sub_1", 200)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusCanceled, got.Status)
	require.True(t, got.CancelAtPeriodEnd)
	require.Equal(t, int64(300), got.LastEventCreated)
	require.Equal(t, types.PlanFree, planOf(t, gdb, "u1"))
	require.Equal(t, int64(1), countRows(t, gdb, &models.Subscription{}, "user_id = ?", "u1"))

	// an update delivered late must not revive it
	_, err = s.UpdateByProviderSubscriptionID(ctx, "sub_1", &SubscriptionPatch{
		Status:       ptr(types.SubscriptionStatusActive),
		EventCreated: 250,
	}, types.SubscriptionChangeReasonProviderUpdated)
	require.ErrorIs(t, err, ErrStaleEvent)
	require.Equal(t, types.PlanFree, planOf(t, gdb, "u1"))
}

func TestCancelByProviderSubscriptionID_MissingRow(t *testing.T) {
	s, _ := newTestService(t)
	got, err := s.CancelByProviderSubscriptionID(context.Background(), "sub_missing", 1)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetters(t *testing.T) {
	s, gdb := newTestService(t)
	ctx := context.Background()
	dbtest.SeedProfile(t, gdb, "u1")

	_, err := s.GetByUserID(ctx, "u1")
	require.ErrorIs(t, err, ErrSubscriptionNotFound)

	_, err = s.UpsertSubscription(ctx, proRecord("u1", "sub_1", 1), types.SubscriptionChangeReasonCheckoutCompleted)
	require.NoError(t, err)

	byProvider, err := s.GetByProviderSubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	require.Equal(t, "u1", byProvider.UserID)

	logs, err := s.ListLogs(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Nil(t, logs[0].Before.Data())
	require.Equal(t, "sub_1", *logs[0].After.Data().ProviderSubscriptionID)
}

func TestUpsertSubscription_MissingProfileStillWritesSubscription(t *testing.T) {
	s, gdb := newTestService(t)
	_, err := s.UpsertSubscription(context.Background(), proRecord("u_noprofile", "sub_9", 1), types.SubscriptionChangeReasonCheckoutCompleted)
	require.NoError(t, err)
	require.Equal(t, int64(1), countRows(t, gdb, &models.Subscription{}, "user_id = ?", "u_noprofile"))
}
