package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeCreated      TicketChangeType = "CREATED"
	ChangeTypeStatus       TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee     TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypePriority     TicketChangeType = "PRIORITY_CHANGE"
	ChangeTypeDepartment   TicketChangeType = "DEPARTMENT_CHANGE"
	ChangeTypeEscalation   TicketChangeType = "ESCALATION"
	ChangeTypeResolution   TicketChangeType = "RESOLUTION"
	ChangeTypeApproval     TicketChangeType = "APPROVAL"
	ChangeTypeRejection    TicketChangeType = "REJECTION"
	ChangeTypeSatisfaction TicketChangeType = "SATISFACTION"
)

// ActorType indicates who performed a change.
type ActorType string

const (
	ActorTypeStaff  ActorType = "STAFF"
	ActorTypeSystem ActorType = "SYSTEM"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	FieldName     string
	OldValue      *string
	NewValue      *string
	ChangeType    TicketChangeType
	ChangedByType ActorType
	ChangedByID   *string
	Comment       string
	CreatedAt     time.Time
}
