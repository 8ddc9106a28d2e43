package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "NEW"
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusEscalated  TicketStatus = "ESCALATED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// ParseTicketStatus validates a raw status value.
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	switch s := TicketStatus(raw); s {
	case TicketStatusNew, TicketStatusOpen, TicketStatusInProgress, TicketStatusPending,
		TicketStatusResolved, TicketStatusEscalated, TicketStatusClosed:
		return s, true
	}
	return "", false
}

// IsActive reports whether work on the ticket is still outstanding.
func (s TicketStatus) IsActive() bool {
	return s != TicketStatusResolved && s != TicketStatusClosed
}

// TicketPriority enumerates SLA urgency, ordered LOW < NORMAL < HIGH < URGENT < CRITICAL.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityNormal   TicketPriority = "NORMAL"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityUrgent   TicketPriority = "URGENT"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

var priorityOrder = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityNormal,
	TicketPriorityHigh,
	TicketPriorityUrgent,
	TicketPriorityCritical,
}

// ParseTicketPriority validates a raw priority value.
func ParseTicketPriority(raw string) (TicketPriority, bool) {
	p := TicketPriority(raw)
	if p.Rank() < 0 {
		return "", false
	}
	return p, true
}

// Rank returns the position of p in the tier order, or -1 for unknown values.
func (p TicketPriority) Rank() int {
	for i, candidate := range priorityOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Next returns the tier above p. CRITICAL stays CRITICAL.
func (p TicketPriority) Next() TicketPriority {
	rank := p.Rank()
	if rank < 0 || rank == len(priorityOrder)-1 {
		return p
	}
	return priorityOrder[rank+1]
}

// TicketSource is the channel a ticket arrived through.
type TicketSource string

const (
	TicketSourceWeb   TicketSource = "WEB"
	TicketSourceEmail TicketSource = "EMAIL"
	TicketSourcePhone TicketSource = "PHONE"
	TicketSourceChat  TicketSource = "CHAT"
	TicketSourceAPI   TicketSource = "API"
)

// ApprovalStage tracks a ticket's position in the resolve/approve pipeline.
type ApprovalStage string

const (
	ApprovalStageNone           ApprovalStage = "NONE"
	ApprovalStagePendingManager ApprovalStage = "PENDING_MANAGER"
	ApprovalStagePendingAdmin   ApprovalStage = "PENDING_ADMIN"
	ApprovalStageApproved       ApprovalStage = "APPROVED"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID       string
	Number   string
	TenantID string

	CustomerID      *string
	CreatorID       *string
	AssignedAgentID *string
	DepartmentID    *string

	Title       string
	Description string
	Category    *string
	Source      TicketSource
	Priority    TicketPriority

	Status          TicketStatus
	EscalationLevel int

	ApprovalStage        ApprovalStage
	PreApprovalStatus    *TicketStatus
	ManagerApproverID    *string
	ManagerApprovedAt    *time.Time
	ManagerComment       string
	AdminApproverID      *string
	AdminApprovedAt      *time.Time
	AdminComment         string
	ResolutionSummary    string
	SatisfactionRating   *int
	SatisfactionFeedback string

	FirstResponseDeadline *time.Time
	SlaDeadline           *time.Time

	CreatedAt       time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	LastActivityAt  time.Time
	UpdatedAt       time.Time

	// Revision is bumped on every successful write and checked on update.
	Revision int64
}
