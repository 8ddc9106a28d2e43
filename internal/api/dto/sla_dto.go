package dto

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// CreatePolicyRequest payload.
type CreatePolicyRequest struct {
	DepartmentID           *string               `json:"department_id"`
	Priority               domain.TicketPriority `json:"priority"`
	FirstResponseTimeHours int                   `json:"first_response_time_hours"`
	ResolutionTimeHours    int                   `json:"resolution_time_hours"`
	BusinessHoursOnly      bool                  `json:"business_hours_only"`
}

// PolicyResponse payload.
type PolicyResponse struct {
	ID                     string                `json:"id"`
	DepartmentID           *string               `json:"department_id"`
	Priority               domain.TicketPriority `json:"priority"`
	FirstResponseTimeHours int                   `json:"first_response_time_hours"`
	ResolutionTimeHours    int                   `json:"resolution_time_hours"`
	BusinessHoursOnly      bool                  `json:"business_hours_only"`
	Active                 bool                  `json:"active"`
	CreatedAt              time.Time             `json:"created_at"`
}

// ScanReportResponse summarizes an on-demand sweep.
type ScanReportResponse struct {
	TenantID        string          `json:"tenant_id"`
	Evaluated       int             `json:"evaluated"`
	TrackingCreated int             `json:"tracking_created"`
	FlagsRaised     int             `json:"flags_raised"`
	Truncated       bool            `json:"truncated"`
	AtRisk          []TicketSummary `json:"at_risk"`
	Violated        []TicketSummary `json:"violated"`
}
