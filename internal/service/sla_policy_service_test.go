package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

func TestComputeDeadlineUsesWallClockHours(t *testing.T) {
	policy := &domain.SlaPolicy{FirstResponseTimeHours: 4, ResolutionTimeHours: 24}
	assert.Equal(t, t0.Add(24*time.Hour), ComputeDeadline(t0, policy))

	policy.BusinessHoursOnly = true
	assert.Equal(t, t0.Add(24*time.Hour), ComputeDeadline(t0, policy))

	deadlines := ComputeDeadlines(t0, policy)
	assert.Equal(t, t0.Add(4*time.Hour), deadlines.FirstResponse)
	assert.Equal(t, t0.Add(24*time.Hour), deadlines.Resolution)
}

func TestResolvePrefersDepartmentPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.department(t, tenant, "Other")
	wide := f.policy(t, nil, domain.TicketPriorityNormal, 8, 48)
	specific := f.policy(t, &f.dept, domain.TicketPriorityNormal, 1, 8)

	got, err := f.policies.Resolve(ctx, tenant, &f.dept, domain.TicketPriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, specific.ID, got.ID)

	got, err = f.policies.Resolve(ctx, tenant, &other, domain.TicketPriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, wide.ID, got.ID)

	got, err = f.policies.Resolve(ctx, tenant, nil, domain.TicketPriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, wide.ID, got.ID)

	_, err = f.policies.Resolve(ctx, tenant, &f.dept, domain.TicketPriorityLow)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.policies.Resolve(ctx, "globex", nil, domain.TicketPriorityNormal)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestCreatePolicyRejectsSecondActivePolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.policy(t, &f.dept, domain.TicketPriorityHigh, 1, 8)

	_, err := f.policies.CreatePolicy(ctx, PolicyInput{
		TenantID: tenant, DepartmentID: &f.dept, Priority: domain.TicketPriorityHigh, ResolutionTimeHours: 4,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	require.NoError(t, f.policies.DeactivatePolicy(ctx, tenant, first.ID))
	replacement := f.policy(t, &f.dept, domain.TicketPriorityHigh, 1, 4)

	active, err := f.policies.ListPolicies(ctx, tenant, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, replacement.ID, active[0].ID)

	all, err := f.policies.ListPolicies(ctx, tenant, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeactivatePolicyHidesOtherTenants(t *testing.T) {
	f := newFixture(t)
	policy := f.policy(t, nil, domain.TicketPriorityHigh, 1, 8)

	err := f.policies.DeactivatePolicy(context.Background(), "globex", policy.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	err = f.policies.DeactivatePolicy(context.Background(), tenant, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestCreatePolicyValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]PolicyInput{
		"missing tenant":      {Priority: domain.TicketPriorityLow, ResolutionTimeHours: 4},
		"unknown priority":    {TenantID: tenant, Priority: "SOON", ResolutionTimeHours: 4},
		"zero resolution":     {TenantID: tenant, Priority: domain.TicketPriorityLow},
		"negative first resp": {TenantID: tenant, Priority: domain.TicketPriorityLow, ResolutionTimeHours: 4, FirstResponseTimeHours: -1},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.policies.CreatePolicy(context.Background(), input)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
		})
	}
}

func TestSeedFromFileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	seed := `
policies:
  - tenant: acme
    priority: CRITICAL
    first_response_hours: 1
    resolution_hours: 4
  - tenant: acme
    department: ` + f.dept + `
    priority: LOW
    first_response_hours: 24
    resolution_hours: 120
    business_hours_only: true
`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	created, err := f.policies.SeedFromFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = f.policies.SeedFromFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	policy, err := f.policies.Resolve(ctx, tenant, &f.dept, domain.TicketPriorityLow)
	require.NoError(t, err)
	assert.True(t, policy.BusinessHoursOnly)
	assert.Equal(t, 120, policy.ResolutionTimeHours)
}

func TestSeedFromFileRejectsUnknownPriority(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies:\n  - tenant: acme\n    priority: EVENTUALLY\n    resolution_hours: 4\n"), 0o600))

	_, err := f.policies.SeedFromFile(context.Background(), path)
	assert.ErrorContains(t, err, "EVENTUALLY")

	_, err = f.policies.SeedFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
