package statistics

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/internal/platform/db/dbtest"
	"github.com/fatflowers/billsync/pkg/tool"
	"github.com/fatflowers/billsync/pkg/types"
)

func TestGetSubscriptionStatistic(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()

	for i, st := range []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusActive, types.SubscriptionStatusCanceled} {
		require.NoError(t, gdb.Create(&models.Subscription{
			ID:                     tool.GenerateUUIDV7(),
			UserID:                 "u" + string(rune('a'+i)),
			ProviderSubscriptionID: lo.ToPtr("sub_" + string(rune('a'+i))),
			Status:                 st,
		}).Error)
	}
	require.NoError(t, gdb.Create(&models.Profile{ID: "ua", SubscriptionPlan: types.PlanPro}).Error)
	require.NoError(t, gdb.Create(&models.Profile{ID: "ub", SubscriptionPlan: types.PlanFree}).Error)
	for _, o := range []models.WebhookEventOutcome{models.WebhookEventOutcomeApplied, models.WebhookEventOutcomeIgnored, models.WebhookEventOutcomeIgnored} {
		require.NoError(t, gdb.Create(&models.WebhookEventLog{
			ID: tool.GenerateUUIDV7(), Provider: types.PaymentProviderStripe, EventID: tool.NewTraceID(),
			EventType: "x", PayloadShape: types.PayloadShapeSnapshot, Outcome: o,
		}).Error)
	}

	res, err := New(gdb).GetSubscriptionStatistic(ctx, &SubscriptionStatisticRequest{DataItems: []*SubscriptionStatisticDataItem{
		{ID: StatisticTypeSubscriptionCountByStatus},
		{ID: StatisticTypeProfileCountByPlan},
		{ID: StatisticTypeWebhookEventCountByOutcome},
	}})
	require.NoError(t, err)
	require.Equal(t, []StatisticResponseDataItem{{Label: "active", Value: 2}, {Label: "canceled", Value: 1}}, res.DataItems[StatisticTypeSubscriptionCountByStatus])
	require.Equal(t, []StatisticResponseDataItem{{Label: "free", Value: 1}, {Label: "pro", Value: 1}}, res.DataItems[StatisticTypeProfileCountByPlan])
	require.Equal(t, []StatisticResponseDataItem{{Label: "applied", Value: 1}, {Label: "ignored", Value: 2}}, res.DataItems[StatisticTypeWebhookEventCountByOutcome])

	res, err = New(gdb).GetSubscriptionStatistic(ctx, &SubscriptionStatisticRequest{
		Filters:   []*types.CommonFilter{{Field: "outcome", Operator: types.CommonFilterOperatorEq, Values: []any{"ignored"}}},
		DataItems: []*SubscriptionStatisticDataItem{{ID: StatisticTypeWebhookEventCountByType}},
	})
	require.NoError(t, err)
	require.Equal(t, []StatisticResponseDataItem{{Label: "x", Value: 2}}, res.DataItems[StatisticTypeWebhookEventCountByType])
}

func TestGetSubscriptionStatistic_Invalid(t *testing.T) {
	gdb := dbtest.Open(t)
	_, err := New(gdb).GetSubscriptionStatistic(context.Background(), &SubscriptionStatisticRequest{
		DataItems: []*SubscriptionStatisticDataItem{{ID: "gmv"}},
	})
	require.Error(t, err)

	_, err = New(gdb).GetSubscriptionStatistic(context.Background(), &SubscriptionStatisticRequest{
		Filters: []*types.CommonFilter{{Field: "payload", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}},
	})
	require.Error(t, err)

	// a null entry in data_items must fail before any worker starts
	_, err = New(gdb).GetSubscriptionStatistic(context.Background(), &SubscriptionStatisticRequest{
		DataItems: []*SubscriptionStatisticDataItem{{ID: StatisticTypeProfileCountByPlan}, nil},
	})
	require.EqualError(t, err, "data item 1: id is required")

	_, err = New(gdb).GetSubscriptionStatistic(context.Background(), &SubscriptionStatisticRequest{
		DataItems: []*SubscriptionStatisticDataItem{{}},
	})
	require.EqualError(t, err, "data item 0: id is required")
}
