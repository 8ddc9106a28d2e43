package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// SlaPolicyService resolves policies, computes deadlines and administers policy records.
type SlaPolicyService struct {
	*engine
}

// NewSlaPolicyService constructs the service.
func NewSlaPolicyService(deps Dependencies) *SlaPolicyService {
	return &SlaPolicyService{engine: newEngine(deps)}
}

// PolicyInput describes a new SLA policy.
type PolicyInput struct {
	TenantID               string
	DepartmentID           *string
	Priority               domain.TicketPriority
	FirstResponseTimeHours int
	ResolutionTimeHours    int
	BusinessHoursOnly      bool
}

// Deadlines are the SLA targets derived from a ticket's creation time.
type Deadlines struct {
	FirstResponse time.Time
	Resolution    time.Time
}

// ComputeDeadline returns createdAt plus the policy's resolution budget in wall-clock hours.
// BusinessHoursOnly is not applied.
func ComputeDeadline(createdAt time.Time, policy *domain.SlaPolicy) time.Time {
	return createdAt.Add(time.Duration(policy.ResolutionTimeHours) * time.Hour)
}

// ComputeDeadlines returns both SLA targets for a ticket created at createdAt.
func ComputeDeadlines(createdAt time.Time, policy *domain.SlaPolicy) Deadlines {
	return Deadlines{
		FirstResponse: createdAt.Add(time.Duration(policy.FirstResponseTimeHours) * time.Hour),
		Resolution:    ComputeDeadline(createdAt, policy),
	}
}

// Resolve returns the active policy for the tuple. A department-specific policy wins over
// the tenant-wide one; when neither exists the error carries NOT_FOUND.
func (s *SlaPolicyService) Resolve(ctx context.Context, tenantID string, departmentID *string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	return resolvePolicy(ctx, s.store.Repos().Policies, tenantID, departmentID, priority)
}

func resolvePolicy(ctx context.Context, policies repository.SlaPolicyRepository, tenantID string, departmentID *string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	if departmentID != nil {
		policy, err := policies.FindActive(ctx, tenantID, departmentID, priority)
		if err == nil {
			return policy, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	policy, err := policies.FindActive(ctx, tenantID, nil, priority)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("sla policy", map[string]any{
				"tenant_id":     tenantID,
				"department_id": departmentID,
				"priority":      priority,
			})
		}
		return nil, err
	}
	return policy, nil
}

// attachPolicy resolves the ticket's policy, stamps its deadlines and returns a new,
// unsaved tracking record. It returns nil when no policy applies.
func attachPolicy(ctx context.Context, policies repository.SlaPolicyRepository, ticket *domain.Ticket) (*domain.SlaTracking, error) {
	policy, err := resolvePolicy(ctx, policies, ticket.TenantID, ticket.DepartmentID, ticket.Priority)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	deadlines := ComputeDeadlines(ticket.CreatedAt, policy)
	if ticket.FirstResponseDeadline == nil {
		ticket.FirstResponseDeadline = &deadlines.FirstResponse
	}
	if ticket.SlaDeadline == nil {
		ticket.SlaDeadline = &deadlines.Resolution
	}
	return &domain.SlaTracking{
		TicketID:              ticket.ID,
		PolicyID:              policy.ID,
		FirstResponseDeadline: *ticket.FirstResponseDeadline,
		ResolutionDeadline:    *ticket.SlaDeadline,
		Escalated:             ticket.EscalationLevel > 0,
		EscalationLevel:       ticket.EscalationLevel,
	}, nil
}

// CreatePolicy stores a new active policy. A second active policy for the same
// (tenant, department, priority) tuple is rejected with CONFLICT.
func (s *SlaPolicyService) CreatePolicy(ctx context.Context, input PolicyInput) (*domain.SlaPolicy, error) {
	if err := validatePolicyInput(input); err != nil {
		return nil, err
	}
	policy := &domain.SlaPolicy{
		TenantID:               input.TenantID,
		DepartmentID:           input.DepartmentID,
		Priority:               input.Priority,
		FirstResponseTimeHours: input.FirstResponseTimeHours,
		ResolutionTimeHours:    input.ResolutionTimeHours,
		BusinessHoursOnly:      input.BusinessHoursOnly,
		Active:                 true,
	}
	if err := s.store.Repos().Policies.Create(ctx, policy); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("an active sla policy already exists for this tenant, department and priority", map[string]any{
				"tenant_id":     input.TenantID,
				"department_id": input.DepartmentID,
				"priority":      input.Priority,
			})
		}
		return nil, err
	}
	s.logger.Info("sla policy created",
		zap.String("policy_id", policy.ID),
		zap.String("tenant_id", policy.TenantID),
		zap.String("priority", string(policy.Priority)))
	return policy, nil
}

// DeactivatePolicy retires a policy. Tracking records already pointing at it keep their deadlines.
func (s *SlaPolicyService) DeactivatePolicy(ctx context.Context, tenantID, policyID string) error {
	policies := s.store.Repos().Policies
	policy, err := policies.GetByID(ctx, policyID)
	if err != nil {
		return notFoundOr(err, "sla policy", policyID)
	}
	if tenantID != "" && policy.TenantID != tenantID {
		return apperrors.NewNotFound("sla policy", map[string]any{"id": policyID})
	}
	return notFoundOr(policies.Deactivate(ctx, policyID), "sla policy", policyID)
}

// ListPolicies returns a tenant's policies.
func (s *SlaPolicyService) ListPolicies(ctx context.Context, tenantID string, includeInactive bool) ([]domain.SlaPolicy, error) {
	return s.store.Repos().Policies.ListByTenant(ctx, tenantID, includeInactive)
}

type policySeedFile struct {
	Policies []struct {
		Tenant            string `yaml:"tenant"`
		Department        string `yaml:"department"`
		Priority          string `yaml:"priority"`
		FirstResponseHrs  int    `yaml:"first_response_hours"`
		ResolutionHrs     int    `yaml:"resolution_hours"`
		BusinessHoursOnly bool   `yaml:"business_hours_only"`
	} `yaml:"policies"`
}

// SeedFromFile creates the policies listed in a YAML file. Tuples that already have an
// active policy are skipped, so seeding is idempotent. It returns the number created.
func (s *SlaPolicyService) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read policy seed: %w", err)
	}
	var seed policySeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse policy seed %s: %w", path, err)
	}

	created := 0
	for i, entry := range seed.Policies {
		priority, ok := domain.ParseTicketPriority(entry.Priority)
		if !ok {
			return created, fmt.Errorf("policy seed entry %d: unknown priority %q", i, entry.Priority)
		}
		input := PolicyInput{
			TenantID:               entry.Tenant,
			Priority:               priority,
			FirstResponseTimeHours: entry.FirstResponseHrs,
			ResolutionTimeHours:    entry.ResolutionHrs,
			BusinessHoursOnly:      entry.BusinessHoursOnly,
		}
		if entry.Department != "" {
			input.DepartmentID = strPtr(entry.Department)
		}
		if _, err := s.CreatePolicy(ctx, input); err != nil {
			if apperrors.HasCode(err, apperrors.CodeConflict) {
				continue
			}
			return created, fmt.Errorf("policy seed entry %d: %w", i, err)
		}
		created++
	}
	return created, nil
}

func validatePolicyInput(input PolicyInput) error {
	details := map[string]any{}
	if input.TenantID == "" {
		details["tenant_id"] = "required"
	}
	if input.Priority.Rank() < 0 {
		details["priority"] = "unknown priority"
	}
	if input.ResolutionTimeHours <= 0 {
		details["resolution_time_hours"] = "must be positive"
	}
	if input.FirstResponseTimeHours < 0 {
		details["first_response_time_hours"] = "must not be negative"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid sla policy", details)
	}
	return nil
}
