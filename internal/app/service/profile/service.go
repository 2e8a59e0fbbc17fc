package profile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/pkg/logctx"
	"github.com/fatflowers/billsync/pkg/types"
)

// Service writes the denormalised plan tag on profiles. Profiles themselves
// are owned by account provisioning and are never created here.
type Service struct {
	db    *gorm.DB
	log   *zap.SugaredLogger
	plans *PlanResolver
}

func NewService(db *gorm.DB, log *zap.SugaredLogger, plans *PlanResolver) *Service {
	return &Service{db: db, log: log, plans: plans}
}

func (s *Service) Plans() *PlanResolver { return s.plans }

// SyncPlan derives the plan from sub and writes it on the owner's profile
// using tx. It returns the plan written.
func (s *Service) SyncPlan(ctx context.Context, tx *gorm.DB, sub *models.Subscription) (types.Plan, error) {
	if sub == nil {
		return "", errors.New("nil subscription")
	}
	plan := s.plans.PlanFor(sub)
	if err := s.SetPlan(ctx, tx, sub.UserID, plan); err != nil {
		return "", err
	}
	return plan, nil
}

// SetPlan writes plan on the profile of userID. A missing profile is logged
// and is not an error.
func (s *Service) SetPlan(ctx context.Context, tx *gorm.DB, userID string, plan types.Plan) error {
	if userID == "" {
		return errors.New("user id is empty")
	}
	if !plan.Valid() {
		return fmt.Errorf("invalid plan %q", plan)
	}
	if tx == nil {
		tx = s.db
	}
	res := tx.WithContext(ctx).Model(&models.Profile{}).
		Where("id = ?", userID).
		Update("subscription_plan", plan)
	if res.Error != nil {
		return fmt.Errorf("failed to update profile plan: %w", res.Error)
	}
	lg := logctx.FromCtx(ctx, s.log)
	if res.RowsAffected == 0 {
		lg.Warnw("profile_missing", "user_id", userID, "plan", plan)
		return nil
	}
	lg.Infow("profile_plan_updated", "user_id", userID, "plan", plan)
	return nil
}

// GetPlan returns the cached plan of userID, or gorm.ErrRecordNotFound.
func (s *Service) GetPlan(ctx context.Context, userID string) (types.Plan, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&p).Error; err != nil {
		return "", err
	}
	return p.SubscriptionPlan, nil
}

// Module exposes the profile service via Fx.
var Module = fx.Options(
	fx.Provide(NewPlanResolver),
	fx.Provide(NewService),
)
