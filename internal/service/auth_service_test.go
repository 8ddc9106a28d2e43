package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository/memory"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

func TestStaffAdministrationAndLogin(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	staffSvc := NewStaffService(store, 4)
	authSvc := NewAuthService(config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, BcryptCost: 4}, store.Repos().Staff)
	admin := StaffActor("root", tenant, domain.StaffRoleAdmin)

	dept, err := staffSvc.CreateDepartment(ctx, admin, "Field Ops", "")
	require.NoError(t, err)
	assert.Equal(t, tenant, dept.TenantID)

	_, err = staffSvc.CreateDepartment(ctx, StaffActor("a", tenant, domain.StaffRoleAgent), "Shadow", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	member, err := staffSvc.CreateStaffMember(ctx, admin, StaffInput{
		Name: "Ana", Email: "ana@acme.test", Password: "s3cret-pass", Role: domain.StaffRoleAgent, DepartmentID: &dept.ID,
	})
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", member.PasswordHash)

	_, err = staffSvc.CreateStaffMember(ctx, admin, StaffInput{
		Name: "Ana again", Email: "ANA@acme.test", Password: "s3cret-pass", Role: domain.StaffRoleAgent,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = staffSvc.CreateStaffMember(ctx, admin, StaffInput{Name: "Bo", Email: "bo", Password: "x", Role: "JANITOR"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	logged, token, _, err := authSvc.LoginStaff(ctx, "ana@acme.test", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, member.ID, logged.ID)
	claims, err := authSvc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, tenant, claims.TenantID)
	assert.Equal(t, domain.StaffRoleAgent, claims.Role)

	_, _, _, err = authSvc.LoginStaff(ctx, "ana@acme.test", "wrong")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	_, _, _, err = authSvc.LoginStaff(ctx, "nobody@acme.test", "s3cret-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, err = staffSvc.SetStaffActive(ctx, admin, member.ID, false)
	require.NoError(t, err)
	_, _, _, err = authSvc.LoginStaff(ctx, "ana@acme.test", "s3cret-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	listed, err := staffSvc.ListStaffMembers(ctx, admin, StaffListFilters{DepartmentID: &dept.ID})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.False(t, listed[0].Active)

	other, err := staffSvc.ListStaffMembers(ctx, StaffActor("x", "globex", domain.StaffRoleAdmin), StaffListFilters{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	staffSvc := NewStaffService(store, 4)
	authSvc := NewAuthService(config.AuthConfig{JWTSecret: "test", BcryptCost: 4}, store.Repos().Staff)
	admin := StaffActor("root", tenant, domain.StaffRoleAdmin)

	member, err := staffSvc.CreateStaffMember(ctx, admin, StaffInput{
		Name: "Cy", Email: "cy@acme.test", Password: "first-pass", Role: domain.StaffRoleManager,
	})
	require.NoError(t, err)

	err = authSvc.ChangePassword(ctx, member.ID, "wrong-pass", "second-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	err = authSvc.ChangePassword(ctx, member.ID, "first-pass", "short")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	require.NoError(t, authSvc.ChangePassword(ctx, member.ID, "first-pass", "second-pass"))
	_, _, _, err = authSvc.LoginStaff(ctx, "cy@acme.test", "second-pass")
	assert.NoError(t, err)
}

func TestWorkloadCountsOpenAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := NewStaffService(f.store, 4)

	first := f.ticket(t, domain.TicketPriorityNormal)
	second := f.ticket(t, domain.TicketPriorityNormal)
	for _, ticket := range []*domain.Ticket{first, second} {
		_, err := f.tickets.AssignToAgent(ctx, ticket.ID, *f.agent.ID, f.manager)
		require.NoError(t, err)
	}

	count, err := staff.Workload(ctx, f.manager, *f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = f.tickets.Close(ctx, second.ID, "done", f.agent)
	require.NoError(t, err)
	count, err = staff.Workload(ctx, f.manager, *f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = staff.Workload(ctx, StaffActor("x", "globex", domain.StaffRoleAdmin), *f.agent.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestBootstrapAdminOnlyOnEmptyTenant(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	staffSvc := NewStaffService(store, 4)
	authSvc := NewAuthService(config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, BcryptCost: 4}, store.Repos().Staff)

	admin, created, err := staffSvc.BootstrapAdmin(ctx, tenant, "root@acme.test", "bootstrap-pass")
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, domain.StaffRoleAdmin, admin.Role)
	assert.Equal(t, tenant, admin.TenantID)

	logged, token, _, err := authSvc.LoginStaff(ctx, "root@acme.test", "bootstrap-pass")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, logged.ID)
	claims, err := authSvc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.StaffRoleAdmin, claims.Role)

	again, created, err := staffSvc.BootstrapAdmin(ctx, tenant, "other@acme.test", "bootstrap-pass")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, again)
	_, _, _, err = authSvc.LoginStaff(ctx, "other@acme.test", "bootstrap-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, _, err = staffSvc.BootstrapAdmin(ctx, "globex", "root@globex.test", "short")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	_, _, err = staffSvc.BootstrapAdmin(ctx, "", "root@acme.test", "bootstrap-pass")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}
