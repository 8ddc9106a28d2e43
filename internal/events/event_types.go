package events

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// EventType enumerates lifecycle notifications.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketEscalated       EventType = "ticket_escalated"
	EventTicketApproved        EventType = "ticket_approved"
	EventTicketRejected        EventType = "ticket_rejected"
	EventTicketRated           EventType = "ticket_rated"
	EventSlaAtRisk             EventType = "sla_at_risk"
	EventSlaViolated           EventType = "sla_violated"
)

// AllEventTypes lists every type a sink may subscribe to.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketAssigned,
	EventTicketEscalated,
	EventTicketApproved,
	EventTicketRejected,
	EventTicketRated,
	EventSlaAtRisk,
	EventSlaViolated,
}

// Actor identifies who caused an event. StaffID is nil for system actions.
type Actor struct {
	Type    domain.ActorType `json:"type"`
	StaffID *string          `json:"staff_id,omitempty"`
}

// Event is a lifecycle notification emitted after a change commits.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	TicketID     string    `json:"ticket_id"`
	TicketNumber string    `json:"ticket_number"`
	TenantID     string    `json:"tenant_id"`
	Actor        Actor     `json:"actor"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	DepartmentID *string               `json:"department_id,omitempty"`
	Priority     domain.TicketPriority `json:"priority"`
	Title        string                `json:"title"`
	SlaDeadline  *time.Time            `json:"sla_deadline,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	PreviousAgentID *string `json:"previous_agent_id,omitempty"`
	AgentID         string  `json:"agent_id"`
	DepartmentID    *string `json:"department_id,omitempty"`
	Automatic       bool    `json:"automatic"`
}

// EscalationTrigger says what caused an escalation.
type EscalationTrigger string

const (
	TriggerManual    EscalationTrigger = "MANUAL"
	TriggerSlaBreach EscalationTrigger = "SLA_BREACH"
)

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Level       int                   `json:"level"`
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
	Trigger     EscalationTrigger     `json:"trigger"`
}

// ApprovalPayload is shared by approval and rejection events.
type ApprovalPayload struct {
	FromStage domain.ApprovalStage `json:"from_stage"`
	ToStage   domain.ApprovalStage `json:"to_stage"`
	Comment   string               `json:"comment,omitempty"`
}

// TicketRatedPayload payload.
type TicketRatedPayload struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

// SlaPayload describes an at-risk or violated ticket.
type SlaPayload struct {
	Deadline              *time.Time `json:"deadline,omitempty"`
	FirstResponseViolated bool       `json:"first_response_violated"`
	ResolutionViolated    bool       `json:"resolution_violated"`
}
