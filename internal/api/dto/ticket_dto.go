package dto

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	CustomerID   *string               `json:"customer_id"`
	DepartmentID *string               `json:"department_id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Category     *string               `json:"category"`
	Source       domain.TicketSource   `json:"source"`
	Priority     domain.TicketPriority `json:"priority"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// AssignRequest payload.
type AssignRequest struct {
	AgentID string `json:"agent_id"`
}

// CloseRequest payload; also used to resolve for approval.
type CloseRequest struct {
	ResolutionSummary string `json:"resolution_summary"`
}

// RatingRequest payload.
type RatingRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

// PriorityRequest payload.
type PriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// ApprovalRequest payload for approve and reject calls.
type ApprovalRequest struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

// TicketSummary response.
type TicketSummary struct {
	ID              string                `json:"id"`
	Number          string                `json:"number"`
	DepartmentID    *string               `json:"department_id"`
	AssignedAgentID *string               `json:"assigned_agent_id"`
	Title           string                `json:"title"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	EscalationLevel int                   `json:"escalation_level"`
	ApprovalStage   domain.ApprovalStage  `json:"approval_stage"`
	SlaDeadline     *time.Time            `json:"sla_deadline"`
	CreatedAt       time.Time             `json:"created_at"`
	LastActivityAt  time.Time             `json:"last_activity_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	TenantID              string     `json:"tenant_id"`
	CustomerID            *string    `json:"customer_id"`
	CreatorID             *string    `json:"creator_id"`
	Description           string     `json:"description"`
	Category              *string    `json:"category"`
	Source                string     `json:"source"`
	ManagerApproverID     *string    `json:"manager_approver_id"`
	ManagerApprovedAt     *time.Time `json:"manager_approved_at"`
	ManagerComment        string     `json:"manager_comment,omitempty"`
	AdminApproverID       *string    `json:"admin_approver_id"`
	AdminApprovedAt       *time.Time `json:"admin_approved_at"`
	AdminComment          string     `json:"admin_comment,omitempty"`
	ResolutionSummary     string     `json:"resolution_summary,omitempty"`
	SatisfactionRating    *int       `json:"satisfaction_rating"`
	SatisfactionFeedback  string     `json:"satisfaction_feedback,omitempty"`
	FirstResponseDeadline *time.Time `json:"first_response_deadline"`
	FirstResponseAt       *time.Time `json:"first_response_at"`
	ResolvedAt            *time.Time `json:"resolved_at"`
	ClosedAt              *time.Time `json:"closed_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	Revision              int64      `json:"revision"`
}

// TicketHistoryResponse describes an audit entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	FieldName     string                  `json:"field_name"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByType domain.ActorType        `json:"changed_by_type"`
	ChangedByID   *string                 `json:"changed_by_id"`
	OldValue      *string                 `json:"old_value"`
	NewValue      *string                 `json:"new_value"`
	Comment       string                  `json:"comment,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// TrackingResponse describes the SLA companion record.
type TrackingResponse struct {
	PolicyID              string    `json:"policy_id"`
	FirstResponseDeadline time.Time `json:"first_response_deadline"`
	ResolutionDeadline    time.Time `json:"resolution_deadline"`
	FirstResponseViolated bool      `json:"first_response_violated"`
	ResolutionViolated    bool      `json:"resolution_violated"`
	Escalated             bool      `json:"escalated"`
	EscalationLevel       int       `json:"escalation_level"`
}

// TypingResponse lists staff currently typing on a ticket.
type TypingResponse struct {
	TicketID string   `json:"ticket_id"`
	StaffIDs []string `json:"staff_ids"`
}
