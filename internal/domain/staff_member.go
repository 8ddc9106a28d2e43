package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent   StaffRole = "AGENT"
	StaffRoleManager StaffRole = "MANAGER"
	StaffRoleAdmin   StaffRole = "ADMIN"
)

// CanHoldTickets reports whether tickets may be assigned to the role.
func (r StaffRole) CanHoldTickets() bool {
	return r == StaffRoleAgent || r == StaffRoleManager
}

// StaffMember models a support agent, manager or administrator.
type StaffMember struct {
	ID           string
	TenantID     string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	DepartmentID *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AgentLoad pairs an agent with the number of active tickets assigned to them.
type AgentLoad struct {
	Agent       StaffMember
	OpenTickets int
}
