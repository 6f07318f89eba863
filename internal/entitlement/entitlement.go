package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

// Plan describes what one subscription tier is entitled to.
type Plan struct {
	Tier                  types.PlanTier     `mapstructure:"tier"`
	Providers             []types.ProviderID `mapstructure:"providers"`
	MaxResults            int                `mapstructure:"max_results"`
	MaxResultsPerProvider int                `mapstructure:"max_results_per_provider"`
	MonthlyAllowance      int64              `mapstructure:"monthly_allowance"` // searches per rolling 30 days, 0 = unlimited
	RetentionDays         int                `mapstructure:"retention_days"`    // 0 = keep until user deletes
	Premium               bool               `mapstructure:"premium"`
}

// DefaultPlans returns the built-in plan table. Config may override it.
func DefaultPlans() map[types.PlanTier]Plan {
	return map[types.PlanTier]Plan{
		types.TierFree: {
			Tier:                  types.TierFree,
			Providers:             []types.ProviderID{types.ProviderPHash},
			MaxResults:            10,
			MaxResultsPerProvider: 20,
			MonthlyAllowance:      25,
			RetentionDays:         30,
		},
		types.TierPro: {
			Tier:                  types.TierPro,
			Providers:             []types.ProviderID{types.ProviderPHash, types.ProviderTinEye, types.ProviderVision},
			MaxResults:            50,
			MaxResultsPerProvider: 50,
			MonthlyAllowance:      500,
			RetentionDays:         180,
		},
		types.TierBusiness: {
			Tier:                  types.TierBusiness,
			Providers:             []types.ProviderID{types.ProviderPHash, types.ProviderTinEye, types.ProviderVision, types.ProviderBing},
			MaxResults:            200,
			MaxResultsPerProvider: 100,
			MonthlyAllowance:      0,
			Premium:               true,
		},
	}
}

// ErrAllowanceExceeded is returned when an account has used up its rolling
// 30-day search allowance.
var ErrAllowanceExceeded = fmt.Errorf("search allowance exceeded")

// Service resolves plan entitlements and enforces search allowances.
//
// Allowance policy: one rolling 30-day window per account, started by the
// first counted search and reset by key expiry. Every entrypoint goes
// through ConsumeSearch, so there is exactly one reset rule.
type Service struct {
	plans  map[types.PlanTier]Plan
	rdb    *redis.Client
	logger *zap.Logger
}

// New creates an entitlement service. plans may be nil to use the defaults.
func New(plans map[types.PlanTier]Plan, rdb *redis.Client, logger *zap.Logger) *Service {
	if len(plans) == 0 {
		plans = DefaultPlans()
	}
	return &Service{plans: plans, rdb: rdb, logger: logger}
}

// Plan returns the plan for a tier, falling back to free for unknown tiers.
func (s *Service) Plan(tier types.PlanTier) Plan {
	if p, ok := s.plans[tier]; ok {
		return p
	}
	return s.plans[types.TierFree]
}

// Plans returns every configured plan.
func (s *Service) Plans() []Plan {
	out := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	return out
}

// Entitlements returns the provider entitlement table for the registry.
func (s *Service) Entitlements() map[types.PlanTier][]types.ProviderID {
	out := make(map[types.PlanTier][]types.ProviderID, len(s.plans))
	for tier, plan := range s.plans {
		out[tier] = plan.Providers
	}
	return out
}

const allowanceWindow = 30 * 24 * time.Hour

func allowanceKey(accountID string) string {
	return "imageguard:searches:" + accountID
}

// ConsumeSearch counts one search against the account's rolling 30-day
// allowance. Anonymous requesters are not tracked; they already sit on the
// most restricted tier.
func (s *Service) ConsumeSearch(ctx context.Context, requester types.RequesterContext) error {
	if requester.Anonymous() {
		return nil
	}

	plan := s.Plan(requester.PlanTier)
	if plan.MonthlyAllowance <= 0 {
		return nil
	}

	key := allowanceKey(requester.AccountID)
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		// Degrade open: an unreachable counter must not block searches.
		s.logger.Warn("allowance counter unavailable", zap.Error(err))
		return nil
	}
	if count == 1 {
		if err := s.rdb.Expire(ctx, key, allowanceWindow).Err(); err != nil {
			s.logger.Warn("failed to set allowance window", zap.Error(err))
		}
	}

	if count > plan.MonthlyAllowance {
		// Refund the overshoot so a later window check stays accurate.
		s.rdb.Decr(ctx, key)
		return fmt.Errorf("%w: %d searches in the current 30-day window (limit %d)",
			ErrAllowanceExceeded, count-1, plan.MonthlyAllowance)
	}

	return nil
}

// Usage returns the number of searches consumed in the current window.
func (s *Service) Usage(ctx context.Context, accountID string) (int64, error) {
	count, err := s.rdb.Get(ctx, allowanceKey(accountID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}
