package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	nh "github.com/fatflowers/billsync/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/billsync/internal/app/service/notification_log"
	"github.com/fatflowers/billsync/internal/app/service/profile"
	"github.com/fatflowers/billsync/internal/app/service/statistics"
	subsvc "github.com/fatflowers/billsync/internal/app/service/subscription"
	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/internal/platform/db/dbtest"
	"github.com/fatflowers/billsync/pkg/config"
	"github.com/fatflowers/billsync/pkg/response"
	"github.com/fatflowers/billsync/pkg/types"
)

type stubResyncer struct {
	sub *models.Subscription
	err error
}

func (s *stubResyncer) Resync(_ context.Context, _ string) (*models.Subscription, error) {
	return s.sub, s.err
}

type adminFixture struct {
	router *gin.Engine
	subs   *subsvc.Service
	events *notificationlog.Service
}

func newAdminFixture(t *testing.T, resyncer Resyncer) *adminFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := dbtest.Open(t)
	log := zap.NewNop().Sugar()
	profiles := profile.NewService(gdb, log, profile.NewPlanResolver(&config.Config{}))
	subs := subsvc.NewService(gdb, log, profiles)
	events := notificationlog.NewSync(gdb, log)

	r := gin.New()
	RegisterAdminRoutes(r.Group("/api/v1/admin"), AdminDeps{
		Subscriptions: subs,
		Profiles:      profiles,
		EventLog:      events,
		Statistics:    statistics.New(gdb),
		Resyncer:      resyncer,
	})
	dbtest.SeedProfile(t, gdb, "u1")
	return &adminFixture{router: r, subs: subs, events: events}
}

func (f *adminFixture) do(t *testing.T, method, path string, body any) *response.APIResponse[json.RawMessage] {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out response.APIResponse[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return &out
}

func TestRegisterAdminRoutes_RegistersEndpoints(t *testing.T) {
	f := newAdminFixture(t, &stubResyncer{})
	var got []string
	for _, rt := range f.router.Routes() {
		got = append(got, rt.Method+" "+rt.Path)
	}
	require.ElementsMatch(t, []string{
		"GET /api/v1/admin/subscriptions/:user_id",
		"POST /api/v1/admin/list_webhook_events",
		"POST /api/v1/admin/get_subscription_statistic",
		"POST /api/v1/admin/resync_subscription",
	}, got)
}

func TestApiGetUserSubscription(t *testing.T) {
	f := newAdminFixture(t, &stubResyncer{})

	res := f.do(t, http.MethodGet, "/api/v1/admin/subscriptions/u1", nil)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	var detail SubscriptionDetail
	require.NoError(t, json.Unmarshal(res.Data, &detail))
	require.Equal(t, types.PlanFree, detail.Plan)
	require.Nil(t, detail.Subscription)

	_, err := f.subs.UpsertSubscription(context.Background(), &models.Subscription{
		UserID:                 "u1",
		ProviderSubscriptionID: lo.ToPtr("sub_1"),
		PriceID:                "price_pro_monthly",
		Status:                 types.SubscriptionStatusActive,
		LastEventCreated:       100,
	}, types.SubscriptionChangeReasonCheckoutCompleted)
	require.NoError(t, err)

	res = f.do(t, http.MethodGet, "/api/v1/admin/subscriptions/u1?log_limit=5", nil)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	require.NoError(t, json.Unmarshal(res.Data, &detail))
	require.Equal(t, types.PlanPro, detail.Plan)
	require.Equal(t, "price_pro_monthly", detail.Subscription.PriceID)
	require.Len(t, detail.Logs, 1)

	require.Equal(t, response.APIResponseCodeNotFound, f.do(t, http.MethodGet, "/api/v1/admin/subscriptions/nobody", nil).Code)
	require.Equal(t, response.APIResponseCodeBadRequest, f.do(t, http.MethodGet, "/api/v1/admin/subscriptions/u1?log_limit=x", nil).Code)
}

func TestApiListWebhookEvents(t *testing.T) {
	f := newAdminFixture(t, &stubResyncer{})
	for _, id := range []string{"evt_1", "evt_2"} {
		f.events.Save(context.Background(), &models.WebhookEventLog{
			Provider:     types.PaymentProviderStripe,
			EventID:      id,
			EventType:    "checkout.session.completed",
			PayloadShape: types.PayloadShapeSnapshot,
			Outcome:      models.WebhookEventOutcomeApplied,
		})
	}

	res := f.do(t, http.MethodPost, "/api/v1/admin/list_webhook_events", map[string]any{
		"filters": []map[string]any{{"field": "event_id", "operator": "eq", "values": []any{"evt_2"}}},
		"size":    10,
	})
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	var list notificationlog.ListResponse
	require.NoError(t, json.Unmarshal(res.Data, &list))
	require.Equal(t, int64(1), list.Total)
	require.Equal(t, "evt_2", list.Items[0].EventID)

	res = f.do(t, http.MethodPost, "/api/v1/admin/list_webhook_events", map[string]any{
		"filters": []map[string]any{{"field": "payload; drop table x", "operator": "eq", "values": []any{"1"}}},
	})
	require.Equal(t, response.APIResponseCodeError, res.Code)
}

func TestApiGetSubscriptionStatistic(t *testing.T) {
	f := newAdminFixture(t, &stubResyncer{})

	res := f.do(t, http.MethodPost, "/api/v1/admin/get_subscription_statistic", map[string]any{
		"data_items": []map[string]any{{"id": statistics.StatisticTypeProfileCountByPlan}},
	})
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	var stats statistics.SubscriptionStatisticResponse
	require.NoError(t, json.Unmarshal(res.Data, &stats))
	require.Equal(t, []statistics.StatisticResponseDataItem{{Label: "free", Value: 1}},
		stats.DataItems[statistics.StatisticTypeProfileCountByPlan])

	res = f.do(t, http.MethodPost, "/api/v1/admin/get_subscription_statistic", map[string]any{
		"filters": []map[string]any{{"field": "user_id", "operator": "eq", "values": []any{"u1"}}},
	})
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code)

	res = f.do(t, http.MethodPost, "/api/v1/admin/get_subscription_statistic", map[string]any{
		"data_items": []any{nil},
	})
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code)
}

func TestApiResyncSubscription(t *testing.T) {
	f := newAdminFixture(t, &stubResyncer{sub: &models.Subscription{UserID: "u1", PriceID: "price_basic"}})
	res := f.do(t, http.MethodPost, "/api/v1/admin/resync_subscription", map[string]any{"provider_subscription_id": "sub_1"})
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	require.Contains(t, string(res.Data), "price_basic")

	res = f.do(t, http.MethodPost, "/api/v1/admin/resync_subscription", map[string]any{})
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code)

	f = newAdminFixture(t, &stubResyncer{err: nh.ErrUserUnresolved})
	res = f.do(t, http.MethodPost, "/api/v1/admin/resync_subscription", map[string]any{"provider_subscription_id": "sub_1"})
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code)
}
