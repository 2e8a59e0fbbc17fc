package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	nh "github.com/fatflowers/billsync/internal/app/service/notification_handler"
	"github.com/fatflowers/billsync/internal/platform/stripe/stripe_signature"
	"github.com/fatflowers/billsync/pkg/logctx"
	"github.com/fatflowers/billsync/pkg/response"
)

// maxWebhookBodyBytes caps the raw body read before verification.
const maxWebhookBodyBytes = 256 << 10

// WebhookProcessor verifies and processes one raw provider delivery.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, req *nh.WebhookRequest) (*nh.Outcome, error)
}

// @Summary      Stripe Webhook
// @Description  Receives Stripe snapshot and thin event deliveries. The body must be the exact bytes Stripe signed.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Stripe signature header"
// @Param        payload body string true "Raw event payload"
// @Success      200  {object}  response.WebhookAck
// @Failure      400  {object}  response.WebhookError
// @Failure      500  {object}  response.WebhookError
// @Router       /api/webhooks/stripe [post]
// ApiStripeWebhook acknowledges every verified delivery with 200, whatever the handler outcome.
func ApiStripeWebhook(p WebhookProcessor, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := logctx.FromGin(c, log)
		defer func() {
			if r := recover(); r != nil {
				lg.Errorw("webhook_stripe_panic", "panic", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.WebhookErr(fmt.Sprintf("internal error: %v", r)))
			}
		}()

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
		if err != nil {
			lg.Warnw("webhook_stripe_read_failed", "err", err)
			c.JSON(http.StatusBadRequest, response.WebhookErr("invalid payload"))
			return
		}

		out, err := p.HandleWebhook(c.Request.Context(), &nh.WebhookRequest{
			Body:        body,
			Signature:   c.GetHeader(stripe_signature.HeaderName),
			ContentType: c.GetHeader("Content-Type"),
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, response.WebhookErr(webhookErrorMessage(err)))
			return
		}
		lg.Infow("webhook_stripe_handled", "outcome", out.Kind)
		c.JSON(http.StatusOK, response.Received())
	}
}

// webhookErrorMessage keeps decode details out of the response body.
func webhookErrorMessage(err error) string {
	if errors.Is(err, nh.ErrInvalidPayload) {
		return "invalid payload"
	}
	return err.Error()
}

func RegisterWebhookRoutes(r gin.IRouter, p WebhookProcessor, log *zap.SugaredLogger) {
	r.POST("/stripe", ApiStripeWebhook(p, log))
}
