package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// ViolationKind names the SLA target a ticket missed.
type ViolationKind string

const (
	ViolationFirstResponse ViolationKind = "first_response"
	ViolationResolution    ViolationKind = "resolution"
)

// MarkViolationIfBreached raises the tracking flags whose timestamp landed after its
// deadline and returns the kinds it raised. Flags are one-way: a raised flag is never
// re-evaluated or cleared.
func MarkViolationIfBreached(ticket *domain.Ticket, tracking *domain.SlaTracking) []ViolationKind {
	var raised []ViolationKind
	if !tracking.FirstResponseViolated && ticket.FirstResponseAt != nil &&
		ticket.FirstResponseAt.After(tracking.FirstResponseDeadline) {
		tracking.FirstResponseViolated = true
		raised = append(raised, ViolationFirstResponse)
	}
	if !tracking.ResolutionViolated && ticket.ResolvedAt != nil &&
		ticket.ResolvedAt.After(tracking.ResolutionDeadline) {
		tracking.ResolutionViolated = true
		raised = append(raised, ViolationResolution)
	}
	return raised
}

// ScannerConfig bounds a sweep.
type ScannerConfig struct {
	RiskWindow time.Duration
	PageSize   int
	MaxPages   int
	Retry      RetryConfig
}

// ScanReport summarizes one tenant sweep.
type ScanReport struct {
	TenantID        string
	Evaluated       int
	TrackingCreated int
	FlagsRaised     int
	AtRisk          []domain.Ticket
	Violated        []domain.Ticket
	// Truncated is set when MaxPages cut a listing short.
	Truncated bool
}

// SlaScanner finds tickets at risk of or past their SLA and keeps tracking flags current.
// It only detects; acting on the result is up to the caller.
type SlaScanner struct {
	*engine
	cfg ScannerConfig
}

// NewSlaScanner constructs the scanner.
func NewSlaScanner(deps Dependencies, cfg ScannerConfig) *SlaScanner {
	if cfg.RiskWindow <= 0 {
		cfg.RiskWindow = 2 * time.Hour
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &SlaScanner{engine: newEngine(deps), cfg: cfg}
}

// ScanAll sweeps every tenant with live tickets. A failing tenant does not stop the others.
func (s *SlaScanner) ScanAll(ctx context.Context) ([]ScanReport, error) {
	tenants, err := s.store.Repos().Tickets.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	var (
		reports []ScanReport
		errs    []error
	)
	for _, tenant := range tenants {
		report, err := s.Scan(ctx, tenant)
		if err != nil {
			s.logger.Error("sla scan failed", zap.String("tenant_id", tenant), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		reports = append(reports, *report)
	}
	return reports, errors.Join(errs...)
}

// Scan evaluates every live ticket of a tenant, creating missing tracking records and
// raising violation flags, then lists the at-risk and violated sets.
func (s *SlaScanner) Scan(ctx context.Context, tenantID string) (*ScanReport, error) {
	started := time.Now()
	report := &ScanReport{TenantID: tenantID}

	truncated, err := s.eachPage(func(page repository.Page) (int, error) {
		tickets, err := s.store.Repos().Tickets.FindActive(ctx, tenantID, page)
		if err != nil {
			return 0, err
		}
		for i := range tickets {
			if err := s.evaluate(ctx, tickets[i].ID, report); err != nil {
				return 0, err
			}
		}
		return len(tickets), nil
	})
	if err != nil {
		return nil, err
	}
	report.Truncated = truncated

	now := s.clock()
	report.AtRisk, truncated, err = s.collect(func(page repository.Page) ([]domain.Ticket, error) {
		return s.store.Repos().Tickets.FindAtRisk(ctx, tenantID, now, now.Add(s.cfg.RiskWindow), page)
	})
	if err != nil {
		return nil, err
	}
	report.Truncated = report.Truncated || truncated

	report.Violated, truncated, err = s.collect(func(page repository.Page) ([]domain.Ticket, error) {
		return s.store.Repos().Tickets.FindViolated(ctx, tenantID, now, page)
	})
	if err != nil {
		return nil, err
	}
	report.Truncated = report.Truncated || truncated

	s.metrics.RecordScan(tenantID, len(report.AtRisk), len(report.Violated), time.Since(started))
	if report.Truncated {
		s.logger.Warn("sla scan hit page limit", zap.String("tenant_id", tenantID), zap.Int("max_pages", s.cfg.MaxPages))
	}
	s.logger.Info("sla scan completed",
		zap.String("tenant_id", tenantID),
		zap.Int("evaluated", report.Evaluated),
		zap.Int("tracking_created", report.TrackingCreated),
		zap.Int("flags_raised", report.FlagsRaised),
		zap.Int("at_risk", len(report.AtRisk)),
		zap.Int("violated", len(report.Violated)))
	return report, nil
}

// AtRisk lists live tickets whose resolution deadline falls inside the risk window.
func (s *SlaScanner) AtRisk(ctx context.Context, tenantID string, page repository.Page) ([]domain.Ticket, error) {
	now := s.clock()
	return s.store.Repos().Tickets.FindAtRisk(ctx, tenantID, now, now.Add(s.cfg.RiskWindow), page)
}

// Violated lists live tickets with a missed deadline.
func (s *SlaScanner) Violated(ctx context.Context, tenantID string, page repository.Page) ([]domain.Ticket, error) {
	return s.store.Repos().Tickets.FindViolated(ctx, tenantID, s.clock(), page)
}

// AnnounceAtRisk publishes an at-risk notice for the ticket. De-duplicating notices
// across sweeps is the caller's job.
func (s *SlaScanner) AnnounceAtRisk(ctx context.Context, ticket domain.Ticket) {
	s.publishEvent(ctx, events.Event{
		Type:         events.EventSlaAtRisk,
		TicketID:     ticket.ID,
		TicketNumber: ticket.Number,
		TenantID:     ticket.TenantID,
		Actor:        SystemActor().event(),
		Payload:      slaPayload(&ticket, nil),
	})
}

// Unassigned lists live tickets without an assignee.
func (s *SlaScanner) Unassigned(ctx context.Context, tenantID string) ([]domain.Ticket, error) {
	tickets, _, err := s.collect(func(page repository.Page) ([]domain.Ticket, error) {
		return s.store.Repos().Tickets.FindUnassigned(ctx, tenantID, page)
	})
	return tickets, err
}

func (s *SlaScanner) evaluate(ctx context.Context, ticketID string, report *ScanReport) error {
	var created, raised int
	err := WithRetry(ctx, s.cfg.Retry, func() error {
		created, raised = 0, 0
		_, err := s.mutate(ctx, ticketID, SystemActor(), func(ctx context.Context, repos repository.Repositories, c *change) error {
			if c.tracking == nil {
				hadDeadlines := c.ticket.FirstResponseDeadline != nil && c.ticket.SlaDeadline != nil
				tracking, err := attachPolicy(ctx, repos.Policies, c.ticket)
				if err != nil || tracking == nil {
					return err
				}
				c.tracking = tracking
				c.trackingDirty = true
				c.dirty = !hadDeadlines
				created = 1
			}
			raised = len(c.refreshViolations())
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}
	report.Evaluated++
	report.TrackingCreated += created
	report.FlagsRaised += raised
	return nil
}

func (s *SlaScanner) eachPage(fn func(page repository.Page) (int, error)) (bool, error) {
	for n := 0; n < s.cfg.MaxPages; n++ {
		count, err := fn(repository.Page{Limit: s.cfg.PageSize, Offset: n * s.cfg.PageSize})
		if err != nil {
			return false, err
		}
		if count < s.cfg.PageSize {
			return false, nil
		}
	}
	return true, nil
}

func (s *SlaScanner) collect(fetch func(page repository.Page) ([]domain.Ticket, error)) ([]domain.Ticket, bool, error) {
	var all []domain.Ticket
	truncated, err := s.eachPage(func(page repository.Page) (int, error) {
		tickets, err := fetch(page)
		all = append(all, tickets...)
		return len(tickets), err
	})
	return all, truncated, err
}

func slaPayload(ticket *domain.Ticket, tracking *domain.SlaTracking) events.SlaPayload {
	payload := events.SlaPayload{Deadline: ticket.SlaDeadline}
	if tracking != nil {
		payload.FirstResponseViolated = tracking.FirstResponseViolated
		payload.ResolutionViolated = tracking.ResolutionViolated
	}
	return payload
}
