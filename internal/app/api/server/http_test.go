package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"
	"go.uber.org/zap"

	nh "github.com/fatflowers/billsync/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/billsync/internal/app/service/notification_log"
	"github.com/fatflowers/billsync/internal/app/service/profile"
	"github.com/fatflowers/billsync/internal/app/service/statistics"
	subsvc "github.com/fatflowers/billsync/internal/app/service/subscription"
	"github.com/fatflowers/billsync/internal/platform/db/dbtest"
	"github.com/fatflowers/billsync/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billsync/internal/platform/stripe/stripe_signature"
	cfgpkg "github.com/fatflowers/billsync/pkg/config"
	"github.com/fatflowers/billsync/pkg/metrics"
)

func newTestRouter(t *testing.T, cfg *cfgpkg.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := dbtest.Open(t)
	log := zap.NewNop().Sugar()
	profiles := profile.NewService(gdb, log, profile.NewPlanResolver(cfg))
	subs := subsvc.NewService(gdb, log, profiles)
	events := notificationlog.NewSync(gdb, log)
	h := nh.NewNotificationHandler(nh.Params{
		Cfg:           cfg,
		Verifier:      stripe_signature.New(0),
		Fetcher:       stripe_api.New(""),
		Subscriptions: subs,
		Log:           log,
		EventLog:      events,
	})

	reg := prometheus.NewRegistry()
	r := newEngine(cfg)
	registerRoutes(routeParams{
		Engine:        r,
		Log:           log,
		Cfg:           cfg,
		DB:            gdb,
		Prometheus:    metrics.NewPrometheus(metrics.NewPrometheusOptions{Subsystem: metricsSubsystem, Registerer: reg, Gatherer: reg}),
		Notifications: h,
		Subscriptions: subs,
		Profiles:      profiles,
		EventLog:      events,
		Statistics:    statistics.New(gdb),
	})
	return r
}

func TestRegisterRoutes(t *testing.T) {
	r := newTestRouter(t, &cfgpkg.Config{})

	routes := map[string]bool{}
	for _, rt := range r.Routes() {
		routes[rt.Method+" "+rt.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /readyz",
		"GET /metrics",
		"GET /swagger/*any",
		"POST /api/webhooks/stripe",
		"GET /api/v1/admin/subscriptions/:user_id",
		"POST /api/v1/admin/resync_subscription",
	} {
		require.True(t, routes[want], want)
	}
}

func TestRoutes_EndToEnd(t *testing.T) {
	r := newTestRouter(t, &cfgpkg.Config{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"missing Stripe-Signature header"}`, w.Body.String())

	// admin API is disabled without a JWT secret
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/subscriptions/u1", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRoutes_WebhookWithoutSecretIsRejected(t *testing.T) {
	r := newTestRouter(t, &cfgpkg.Config{})

	payload := []byte(`{"id":"evt_1","object":"event","type":"customer.subscription.deleted","created":100,"data":{"object":{"id":"sub_1","object":"subscription"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "", Timestamp: time.Now()})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set(stripe_signature.HeaderName, signed.Header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"webhook signature verification failed: webhook secret is not configured"}`, w.Body.String())
}
