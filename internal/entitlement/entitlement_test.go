package entitlement

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlans(t *testing.T) {
	plans := DefaultPlans()
	require.Len(t, plans, 3)

	free := plans[types.TierFree]
	assert.Equal(t, []types.ProviderID{types.ProviderPHash}, free.Providers)
	assert.Equal(t, 10, free.MaxResults)
	assert.Equal(t, int64(25), free.MonthlyAllowance)
	assert.Equal(t, 30, free.RetentionDays)
	assert.False(t, free.Premium)

	pro := plans[types.TierPro]
	assert.Len(t, pro.Providers, 3)
	assert.NotContains(t, pro.Providers, types.ProviderBing)

	business := plans[types.TierBusiness]
	assert.Len(t, business.Providers, 4)
	assert.Equal(t, int64(0), business.MonthlyAllowance)
	assert.True(t, business.Premium)
}

func TestService_Plan_UnknownTierFallsBackToFree(t *testing.T) {
	svc := New(nil, nil, zap.NewNop())

	plan := svc.Plan(types.PlanTier("trial"))
	assert.Equal(t, types.TierFree, plan.Tier)
}

func TestService_Entitlements(t *testing.T) {
	svc := New(nil, nil, zap.NewNop())

	table := svc.Entitlements()
	require.Len(t, table, 3)
	assert.Equal(t, []types.ProviderID{types.ProviderPHash}, table[types.TierFree])
	assert.Len(t, table[types.TierBusiness], 4)
}

func TestService_ConsumeSearch_SkipsUntracked(t *testing.T) {
	// nil redis client: these paths must never touch the counter
	svc := New(nil, nil, zap.NewNop())

	// Anonymous requesters are not tracked
	err := svc.ConsumeSearch(context.Background(), types.RequesterContext{PlanTier: types.TierFree})
	assert.NoError(t, err)

	// Unlimited plans are not tracked
	err = svc.ConsumeSearch(context.Background(), types.RequesterContext{
		AccountID: "acc-1",
		PlanTier:  types.TierBusiness,
	})
	assert.NoError(t, err)
}
