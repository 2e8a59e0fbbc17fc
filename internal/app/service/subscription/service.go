package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/billsync/internal/app/service/profile"
	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/pkg/logctx"
	"github.com/fatflowers/billsync/pkg/tool"
	"github.com/fatflowers/billsync/pkg/types"
)

var (
	// ErrStaleEvent is returned when the stored row was written by a newer provider event.
	ErrStaleEvent           = errors.New("stale provider event")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// upsertColumns are overwritten on conflict. id, user_id and created_at are kept.
var upsertColumns = []string{
	"provider_customer_id",
	"provider_subscription_id",
	"price_id",
	"status",
	"current_period_start",
	"current_period_end",
	"cancel_at_period_end",
	"last_event_created",
	"updated_at",
}

// Service reconciles local subscription rows with provider state. Every write
// also syncs the owner's profile plan and appends a subscription log, all in
// one transaction.
type Service struct {
	db       *gorm.DB
	log      *zap.SugaredLogger
	profiles *profile.Service
}

func NewService(db *gorm.DB, log *zap.SugaredLogger, profiles *profile.Service) *Service {
	return &Service{db: db, log: log, profiles: profiles}
}

type eventIDKey struct{}

// WithEventID tags writes made with ctx with the provider event id for the subscription log.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDKey{}, eventID)
}

func eventIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(eventIDKey{}).(string)
	return s
}

// UpsertSubscription inserts or replaces the row of rec.UserID. rec.LastEventCreated
// must carry the provider event time; an older event than the stored one
// changes nothing and returns ErrStaleEvent. Replaying the same event is a no-op
// in effect.
func (s *Service) UpsertSubscription(ctx context.Context, rec *models.Subscription, reason types.SubscriptionChangeReason) (*models.Subscription, error) {
	if rec == nil || rec.UserID == "" {
		return nil, errors.New("subscription user id is required")
	}
	var stored *models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := findOne(ctx, tx, "user_id = ?", rec.UserID)
		if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			return err
		}

		// A fresh id keeps user_id the only conflicting key; the existing id survives the update.
		row := *rec
		row.ID = tool.GenerateUUIDV7()
		row.CreatedAt, row.UpdatedAt = time.Time{}, time.Time{}

		res := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "subscriptions.last_event_created <= excluded.last_event_created"},
			}},
		}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("failed to upsert subscription: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleEvent
		}

		stored, err = findOne(ctx, tx, "user_id = ?", rec.UserID)
		if err != nil {
			return err
		}
		return s.afterWrite(ctx, tx, before, stored, reason)
	})
	if err != nil {
		s.logWriteError(ctx, err, "user_id", rec.UserID, "reason", reason)
		return nil, err
	}
	return stored, nil
}

// SubscriptionPatch is a partial update. Nil fields are left unchanged.
type SubscriptionPatch struct {
	ProviderCustomerID *string
	PriceID            *string
	Status             *types.SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  *bool
	// EventCreated is the provider event time, used for the ordering guard.
	EventCreated int64
}

func (p *SubscriptionPatch) columns() map[string]any {
	cols := map[string]any{}
	if p.ProviderCustomerID != nil {
		cols["provider_customer_id"] = *p.ProviderCustomerID
	}
	if p.PriceID != nil {
		cols["price_id"] = *p.PriceID
	}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.CurrentPeriodStart != nil {
		cols["current_period_start"] = *p.CurrentPeriodStart
	}
	if p.CurrentPeriodEnd != nil {
		cols["current_period_end"] = *p.CurrentPeriodEnd
	}
	if p.CancelAtPeriodEnd != nil {
		cols["cancel_at_period_end"] = *p.CancelAtPeriodEnd
	}
	return cols
}

// UpdateByProviderSubscriptionID applies patch to the row holding providerID.
// When no row exists yet (the update overtook the checkout) it logs and
// returns nil, nil.
func (s *Service) UpdateByProviderSubscriptionID(ctx context.Context, providerID string, patch *SubscriptionPatch, reason types.SubscriptionChangeReason) (*models.Subscription, error) {
	if providerID == "" {
		return nil, errors.New("provider subscription id is required")
	}
	if patch == nil {
		patch = &SubscriptionPatch{}
	}
	return s.updateByProviderID(ctx, providerID, reason, func(before *models.Subscription) (map[string]any, string, []any) {
		cols := patch.columns()
		cols["last_event_created"] = patch.EventCreated
		return cols, "id = ? AND last_event_created <= ?", []any{before.ID, patch.EventCreated}
	})
}

// CancelByProviderSubscriptionID marks the row holding providerID canceled
// with cancel_at_period_end set. The row is kept. Deletion is terminal on the
// provider side, so it applies even when the row carries a newer event; the
// stored event time only moves forward. No row: logs and returns nil, nil.
func (s *Service) CancelByProviderSubscriptionID(ctx context.Context, providerID string, eventCreated int64) (*models.Subscription, error) {
	if providerID == "" {
		return nil, errors.New("provider subscription id is required")
	}
	return s.updateByProviderID(ctx, providerID, types.SubscriptionChangeReasonProviderDeleted, func(before *models.Subscription) (map[string]any, string, []any) {
		cols := map[string]any{
			"status":               types.SubscriptionStatusCanceled,
			"cancel_at_period_end": true,
			"last_event_created":   max(before.LastEventCreated, eventCreated),
		}
		return cols, "id = ?", []any{before.ID}
	})
}

type updateFn func(before *models.Subscription) (cols map[string]any, where string, args []any)

func (s *Service) updateByProviderID(ctx context.Context, providerID string, reason types.SubscriptionChangeReason, build updateFn) (*models.Subscription, error) {
	var stored *models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := findOne(ctx, tx, "provider_subscription_id = ?", providerID)
		if err != nil {
			return err
		}

		cols, where, args := build(before)
		cols["updated_at"] = time.Now()
		res := tx.WithContext(ctx).Model(&models.Subscription{}).Where(where, args...).Updates(cols)
		if res.Error != nil {
			return fmt.Errorf("failed to update subscription: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleEvent
		}

		stored, err = findOne(ctx, tx, "id = ?", before.ID)
		if err != nil {
			return err
		}
		return s.afterWrite(ctx, tx, before, stored, reason)
	})
	if errors.Is(err, ErrSubscriptionNotFound) {
		logctx.FromCtx(ctx, s.log).Warnw("subscription_not_found", "provider_subscription_id", providerID, "reason", reason)
		return nil, nil
	}
	if err != nil {
		s.logWriteError(ctx, err, "provider_subscription_id", providerID, "reason", reason)
		return nil, err
	}
	return stored, nil
}

// afterWrite syncs the profile plan and records the change, inside tx.
func (s *Service) afterWrite(ctx context.Context, tx *gorm.DB, before, after *models.Subscription, reason types.SubscriptionChangeReason) error {
	plan, err := s.profiles.SyncPlan(ctx, tx, after)
	if err != nil {
		return fmt.Errorf("failed to sync profile plan: %w", err)
	}
	entry := &models.SubscriptionLog{
		ID:      tool.GenerateUUIDV7(),
		UserID:  after.UserID,
		Reason:  reason,
		EventID: eventIDFrom(ctx),
		Before:  datatypes.NewJSONType(before),
		After:   datatypes.NewJSONType(after),
		Plan:    plan,
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to save subscription log: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription_reconciled",
		"user_id", after.UserID,
		"provider_subscription_id", after.ProviderSubscriptionID,
		"status", after.Status,
		"plan", plan,
		"reason", reason,
	)
	return nil
}

func (s *Service) logWriteError(ctx context.Context, err error, kv ...any) {
	lg := logctx.FromCtx(ctx, s.log)
	if errors.Is(err, ErrStaleEvent) {
		lg.Infow("subscription_stale_event", kv...)
		return
	}
	lg.Errorw("subscription_write_failed", append(kv, "err", err)...)
}

// GetByUserID returns the row of userID or ErrSubscriptionNotFound.
func (s *Service) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	return findOne(ctx, s.db, "user_id = ?", userID)
}

// GetByProviderSubscriptionID returns the row holding providerID or ErrSubscriptionNotFound.
func (s *Service) GetByProviderSubscriptionID(ctx context.Context, providerID string) (*models.Subscription, error) {
	return findOne(ctx, s.db, "provider_subscription_id = ?", providerID)
}

// ListLogs returns the latest subscription changes of userID, newest first.
func (s *Service) ListLogs(ctx context.Context, userID string, limit int) ([]*models.SubscriptionLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var logs []*models.SubscriptionLog
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at desc").Order("id desc").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*models.Subscription, error) {
	var m models.Subscription
	if err := db.WithContext(ctx).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &m, nil
}
