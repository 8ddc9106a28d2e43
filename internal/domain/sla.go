package domain

import "time"

// SlaPolicy pairs a priority tier with response and resolution budgets.
// A policy with nil DepartmentID applies tenant-wide.
type SlaPolicy struct {
	ID                     string
	TenantID               string
	DepartmentID           *string
	Priority               TicketPriority
	FirstResponseTimeHours int
	ResolutionTimeHours    int
	BusinessHoursOnly      bool
	Active                 bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// SlaTracking is the per-ticket SLA companion record.
type SlaTracking struct {
	ID                    string
	TicketID              string
	PolicyID              string
	FirstResponseDeadline time.Time
	ResolutionDeadline    time.Time
	FirstResponseViolated bool
	ResolutionViolated    bool
	Escalated             bool
	EscalationLevel       int
	CreatedAt             time.Time
	UpdatedAt             time.Time
	Revision              int64
}
