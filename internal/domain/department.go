package domain

import "time"

// Department represents a high-level organizational unit within a tenant.
type Department struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
