package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// StaffHandler serves staff authentication and staff administration.
type StaffHandler struct {
	authService  *service.AuthService
	staffService *service.StaffService
}

// NewStaffHandler creates handler.
func NewStaffHandler(authService *service.AuthService, staffService *service.StaffService) *StaffHandler {
	return &StaffHandler{authService: authService, staffService: staffService}
}

// Login handles POST /auth/staff/login.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	_, token, expiresAt, err := h.authService.LoginStaff(c.UserContext(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.AuthResponse{Token: token, ExpiresAt: expiresAt})
}

// ChangePassword handles POST /api/v1/me/password.
func (h *StaffHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("staff required")
	}
	var req dto.PasswordChangeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.authService.ChangePassword(c.UserContext(), principal.Staff.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Me handles GET /api/v1/me.
func (h *StaffHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("staff required")
	}
	return c.JSON(fiber.Map{"data": staffResponse(principal.Staff)})
}

// CreateDepartment handles POST /api/v1/departments.
func (h *StaffHandler) CreateDepartment(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateDepartmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	dept, err := h.staffService.CreateDepartment(c.UserContext(), actor, req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": departmentResponse(dept)})
}

// ListDepartments handles GET /api/v1/departments.
func (h *StaffHandler) ListDepartments(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	depts, err := h.staffService.ListDepartments(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]dto.DepartmentResponse, 0, len(depts))
	for i := range depts {
		items = append(items, departmentResponse(&depts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateStaff handles POST /api/v1/staff.
func (h *StaffHandler) CreateStaff(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateStaffRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	staff, err := h.staffService.CreateStaffMember(c.UserContext(), actor, service.StaffInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		Role:         req.Role,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": staffResponse(staff)})
}

// ListStaff handles GET /api/v1/staff.
func (h *StaffHandler) ListStaff(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	page := parsePage(c)
	filters := service.StaffListFilters{
		DepartmentID: optionalQuery(c, "department_id"),
		Limit:        page.Limit,
		Offset:       page.Offset,
	}
	if raw := c.Query("role"); raw != "" {
		role := domain.StaffRole(strings.ToUpper(raw))
		filters.Role = &role
	}
	if raw := c.Query("active"); raw != "" {
		active := raw == "true" || raw == "1"
		filters.Active = &active
	}
	members, err := h.staffService.ListStaffMembers(c.UserContext(), actor, filters)
	if err != nil {
		return err
	}
	items := make([]dto.StaffResponse, 0, len(members))
	for i := range members {
		items = append(items, staffResponse(&members[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SetStaffActive handles PATCH /api/v1/staff/:id/active.
func (h *StaffHandler) SetStaffActive(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.SetActiveRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	staff, err := h.staffService.SetStaffActive(c.UserContext(), actor, c.Params("id"), req.Active)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": staffResponse(staff)})
}

// Workload handles GET /api/v1/staff/:id/workload.
func (h *StaffHandler) Workload(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	count, err := h.staffService.Workload(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"staff_id": c.Params("id"), "open_tickets": count}})
}
