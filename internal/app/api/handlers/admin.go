package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	nh "github.com/fatflowers/billsync/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/billsync/internal/app/service/notification_log"
	"github.com/fatflowers/billsync/internal/app/service/profile"
	"github.com/fatflowers/billsync/internal/app/service/statistics"
	subsvc "github.com/fatflowers/billsync/internal/app/service/subscription"
	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/pkg/response"
	"github.com/fatflowers/billsync/pkg/types"
)

// Resyncer pulls one subscription from the provider and stores it.
type Resyncer interface {
	Resync(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
}

type SubscriptionDetail struct {
	UserID       string                    `json:"user_id"`
	Plan         types.Plan                `json:"plan"`
	Subscription *models.Subscription      `json:"subscription"`
	Logs         []*models.SubscriptionLog `json:"logs"`
}

// @Summary      Get User Subscription (Admin)
// @Description  Returns the stored subscription, the profile plan and the latest subscription changes of a user.
// @Tags         Admin
// @Produce      json
// @Param        user_id    path   string  true   "User ID"
// @Param        log_limit  query  int     false  "Number of change log entries (default 20, max 100)"
// @Success      200  {object}  handlers.RespSubscriptionDetail
// @Security     BearerAuth
// @Router       /api/v1/admin/subscriptions/{user_id} [get]
func ApiGetUserSubscription(subs *subsvc.Service, profiles *profile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}
		limit := 20
		if v := c.Query("log_limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid log_limit"))
				return
			}
			limit = n
		}

		ctx := c.Request.Context()
		plan, err := profiles.GetPlan(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, "profile not found"))
			return
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}

		detail := &SubscriptionDetail{UserID: userID, Plan: plan}
		sub, err := subs.GetByUserID(ctx, userID)
		switch {
		case errors.Is(err, subsvc.ErrSubscriptionNotFound):
			// profile without a subscription: plan only
		case err != nil:
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		default:
			detail.Subscription = sub
		}
		if detail.Logs, err = subs.ListLogs(ctx, userID, limit); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(detail))
	}
}

// @Summary      List Webhook Events (Admin)
// @Description  Retrieves a paginated and filterable list of received webhook events and their outcomes.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body notificationlog.ListRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListWebhookEvents
// @Security     BearerAuth
// @Router       /api/v1/admin/list_webhook_events [post]
func ApiListWebhookEvents(svc *notificationlog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notificationlog.ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.List(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Subscription Statistics (Admin)
// @Description  Counts subscriptions by status, profiles by plan and webhook events by outcome or type.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.SubscriptionStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespSubscriptionStatistic
// @Security     BearerAuth
// @Router       /api/v1/admin/get_subscription_statistic [post]
func ApiGetSubscriptionStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.SubscriptionStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetSubscriptionStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type ResyncSubscriptionRequest struct {
	ProviderSubscriptionID string `json:"provider_subscription_id"`
}

// @Summary      Resync Subscription (Admin)
// @Description  Fetches a subscription from Stripe and overwrites the stored row and profile plan.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body handlers.ResyncSubscriptionRequest true "Provider subscription to resync"
// @Success      200  {object}  handlers.RespSubscription
// @Security     BearerAuth
// @Router       /api/v1/admin/resync_subscription [post]
func ApiResyncSubscription(r Resyncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResyncSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.ProviderSubscriptionID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing provider_subscription_id"))
			return
		}
		sub, err := r.Resync(c.Request.Context(), req.ProviderSubscriptionID)
		if err != nil {
			code := response.APIResponseCodeError
			if errors.Is(err, nh.ErrUserUnresolved) {
				code = response.APIResponseCodeBadRequest
			}
			c.JSON(http.StatusOK, response.ErrorT[any](code, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

type AdminDeps struct {
	Subscriptions *subsvc.Service
	Profiles      *profile.Service
	EventLog      *notificationlog.Service
	Statistics    *statistics.Service
	Resyncer      Resyncer
}

func RegisterAdminRoutes(r gin.IRouter, d AdminDeps) {
	r.GET("/subscriptions/:user_id", ApiGetUserSubscription(d.Subscriptions, d.Profiles))
	r.POST("/list_webhook_events", ApiListWebhookEvents(d.EventLog))
	r.POST("/get_subscription_statistic", ApiGetSubscriptionStatistic(d.Statistics))
	r.POST("/resync_subscription", ApiResyncSubscription(d.Resyncer))
}
