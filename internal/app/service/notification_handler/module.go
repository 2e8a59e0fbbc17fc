package notification_handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/billsync/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billsync/internal/platform/stripe/stripe_signature"
	"github.com/fatflowers/billsync/pkg/config"
	"github.com/fatflowers/billsync/pkg/metrics"
)

func newVerifier(cfg *config.Config) *stripe_signature.Verifier {
	return stripe_signature.New(cfg.Stripe.WebhookTolerance)
}

func newFetcher(cfg *config.Config) stripe_api.SubscriptionFetcher {
	return stripe_api.New(cfg.Stripe.APIKey)
}

func newRecorder(log *zap.SugaredLogger) metrics.WebhookRecorder {
	return metrics.NewPrometheusWebhookRecorder(prometheus.DefaultRegisterer, "billsync", log)
}

var Module = fx.Options(
	fx.Provide(newVerifier),
	fx.Provide(newFetcher),
	fx.Provide(newRecorder),
	fx.Provide(NewNotificationHandler),
)
