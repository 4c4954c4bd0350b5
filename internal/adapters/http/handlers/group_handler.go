package handlers

import (
	"errors"
	"strconv"

	"chamapesa/internal/adapters/http/middleware"
	"chamapesa/internal/core/domain"
	"chamapesa/internal/core/services"
	"chamapesa/internal/pkg/pagination"
	"chamapesa/internal/pkg/response"
	"chamapesa/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// GroupHandler handles savings group endpoints
type GroupHandler struct {
	groupService *services.GroupService
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(groupService *services.GroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

// Create handles group creation
// @Summary Create savings group
// @Description Create a group; the creator becomes its first admin
// @Tags Groups
// @Accept json
// @Produce json
// @Param body body services.CreateGroupInput true "Group data"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /groups [post]
func (h *GroupHandler) Create(c *fiber.Ctx) error {
	var input services.CreateGroupInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if fields := validation.Struct(&input); fields != nil {
		return response.ValidationError(c, fields)
	}

	group, err := h.groupService.Create(c.Context(), &input, middleware.UserID(c))
	if err != nil {
		return response.InternalServerError(c, "Failed to create group")
	}
	return response.Created(c, "Group created", group)
}

// List handles group listing
// @Summary List groups
// @Tags Groups
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Response
// @Router /groups [get]
func (h *GroupHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	groups, total, err := h.groupService.List(c.Context(), params.Offset, params.Limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to list groups")
	}
	return response.Success(c, "Groups retrieved", pagination.NewResponse(groups, params, total))
}

// Get handles single group retrieval
// @Summary Get group
// @Tags Groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /groups/{id} [get]
func (h *GroupHandler) Get(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid group ID")
	}

	group, err := h.groupService.GetByID(c.Context(), groupID)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			return response.NotFound(c, "Group not found")
		}
		return response.InternalServerError(c, "Failed to get group")
	}
	return response.Success(c, "Group retrieved", group)
}

// AddMember enrolls a user into the group
// @Summary Add group member
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param body body services.AddMemberInput true "Member data"
// @Success 201 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /groups/{id}/members [post]
func (h *GroupHandler) AddMember(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid group ID")
	}

	var input services.AddMemberInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if fields := validation.Struct(&input); fields != nil {
		return response.ValidationError(c, fields)
	}

	membership, err := h.groupService.AddMember(c.Context(), groupID, &input, middleware.UserID(c))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrForbidden):
			return response.Forbidden(c, "Only group admins may add members")
		case errors.Is(err, domain.ErrGroupNotFound):
			return response.NotFound(c, "Group not found")
		case errors.Is(err, domain.ErrUserNotFound):
			return response.NotFound(c, "User not found")
		case errors.Is(err, domain.ErrAlreadyMember):
			return response.Conflict(c, "User is already a member of this group")
		default:
			return response.InternalServerError(c, "Failed to add member")
		}
	}
	return response.Created(c, "Member added", membership)
}

// UpdateMemberRole changes a membership's role
// @Summary Update member role
// @Tags Groups
// @Accept json
// @Produce json
// @Param membershipId path int true "Membership ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /memberships/{membershipId}/role [patch]
func (h *GroupHandler) UpdateMemberRole(c *fiber.Ctx) error {
	membershipID, err := parseID(c, "membershipId")
	if err != nil {
		return response.BadRequest(c, "Invalid membership ID")
	}

	var body struct {
		Role string `json:"role" validate:"required,oneof=admin treasurer secretary member"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if fields := validation.Struct(&body); fields != nil {
		return response.ValidationError(c, fields)
	}

	membership, err := h.groupService.UpdateMemberRole(c.Context(), membershipID, body.Role, middleware.UserID(c))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrForbidden):
			return response.Forbidden(c, "Only group admins may change roles")
		case errors.Is(err, domain.ErrMembershipNotFound):
			return response.NotFound(c, "Membership not found")
		case errors.Is(err, domain.ErrLastAdmin):
			return response.Conflict(c, "Group must retain at least one admin")
		default:
			return response.InternalServerError(c, "Failed to update role")
		}
	}
	return response.Success(c, "Role updated", membership)
}

// ListMembers returns the group's memberships
// @Summary List group members
// @Tags Groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Response
// @Router /groups/{id}/members [get]
func (h *GroupHandler) ListMembers(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid group ID")
	}

	members, err := h.groupService.ListMembers(c.Context(), groupID, middleware.UserID(c))
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			return response.Forbidden(c, "Only group members may view the member list")
		}
		return response.InternalServerError(c, "Failed to list members")
	}
	return response.Success(c, "Members retrieved", members)
}

// Ledger returns the group's transaction history
// @Summary Group ledger
// @Tags Groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Response
// @Router /groups/{id}/ledger [get]
func (h *GroupHandler) Ledger(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid group ID")
	}

	params := pagination.GetParams(c)
	txs, total, err := h.groupService.Ledger(c.Context(), groupID, middleware.UserID(c), params.Offset, params.Limit)
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			return response.Forbidden(c, "Only group members may view the ledger")
		}
		return response.InternalServerError(c, "Failed to get ledger")
	}
	return response.Success(c, "Ledger retrieved", pagination.NewResponse(txs, params, total))
}

// Balance returns the group's pot balance
// @Summary Group balance
// @Tags Groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Response
// @Router /groups/{id}/balance [get]
func (h *GroupHandler) Balance(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid group ID")
	}

	balance, err := h.groupService.Balance(c.Context(), groupID, middleware.UserID(c))
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			return response.Forbidden(c, "Only group members may view the balance")
		}
		return response.InternalServerError(c, "Failed to get balance")
	}
	return response.Success(c, "Balance retrieved", fiber.Map{"balance": balance})
}

// parseID parses a positive integer path parameter
func parseID(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}
