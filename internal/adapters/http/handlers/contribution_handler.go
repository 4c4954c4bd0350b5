package handlers

import (
	"errors"

	"chamapesa/internal/adapters/http/middleware"
	"chamapesa/internal/core/domain"
	"chamapesa/internal/core/services"
	"chamapesa/internal/pkg/pagination"
	"chamapesa/internal/pkg/response"
	"chamapesa/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// ContributionHandler handles contribution endpoints
type ContributionHandler struct {
	contributionService *services.ContributionService
}

// NewContributionHandler creates a new contribution handler
func NewContributionHandler(contributionService *services.ContributionService) *ContributionHandler {
	return &ContributionHandler{contributionService: contributionService}
}

// Create handles contribution creation
// @Summary Make a contribution
// @Description Record a contribution; MPESA contributions trigger a payment prompt
// @Tags Contributions
// @Accept json
// @Produce json
// @Param body body services.CreateContributionInput true "Contribution data"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /contributions [post]
func (h *ContributionHandler) Create(c *fiber.Ctx) error {
	var input services.CreateContributionInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if fields := validation.Struct(&input); fields != nil {
		return response.ValidationError(c, fields)
	}

	contribution, err := h.contributionService.Create(c.Context(), &input, middleware.UserID(c), c.IP())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMembershipNotFound):
			return response.NotFound(c, "Membership not found")
		case errors.Is(err, domain.ErrNotMembershipOwner):
			return response.Forbidden(c, "A member may only contribute for themselves")
		default:
			return response.InternalServerError(c, "Failed to create contribution")
		}
	}
	return response.Created(c, "Contribution created", contribution)
}

// Get retrieves one contribution
// @Summary Get contribution
// @Tags Contributions
// @Produce json
// @Param id path int true "Contribution ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /contributions/{id} [get]
func (h *ContributionHandler) Get(c *fiber.Ctx) error {
	contributionID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid contribution ID")
	}

	contribution, err := h.contributionService.GetByID(c.Context(), contributionID)
	if err != nil {
		if errors.Is(err, domain.ErrContributionNotFound) {
			return response.NotFound(c, "Contribution not found")
		}
		return response.InternalServerError(c, "Failed to get contribution")
	}
	return response.Success(c, "Contribution retrieved", contribution)
}

// QueryStatus polls the gateway for a pending mobile-money contribution
// @Summary Query contribution payment status
// @Tags Contributions
// @Produce json
// @Param id path int true "Contribution ID"
// @Success 200 {object} response.Response
// @Router /contributions/{id}/status [get]
func (h *ContributionHandler) QueryStatus(c *fiber.Ctx) error {
	contributionID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid contribution ID")
	}

	status, err := h.contributionService.QueryPushStatus(c.Context(), contributionID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrContributionNotFound):
			return response.NotFound(c, "Contribution not found")
		case errors.Is(err, domain.ErrPendingTxResolved):
			return response.Conflict(c, "Contribution is already resolved")
		case errors.Is(err, domain.ErrPendingTxNotFound):
			return response.NotFound(c, "No pending payment for this contribution")
		default:
			return response.InternalServerError(c, "Failed to query payment status")
		}
	}
	return response.Success(c, "Payment status retrieved", status)
}

// ListByGroup lists a group's contributions
// @Summary List group contributions
// @Tags Contributions
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Response
// @Router /groups/{id}/contributions [get]
func (h *ContributionHandler) ListByGroup(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid group ID")
	}

	params := pagination.GetParams(c)
	contributions, total, err := h.contributionService.ListByGroup(c.Context(), groupID, params.Offset, params.Limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to list contributions")
	}
	return response.Success(c, "Contributions retrieved", pagination.NewResponse(contributions, params, total))
}

// ListByMembership lists one member's contributions
// @Summary List member contributions
// @Tags Contributions
// @Produce json
// @Param membershipId path int true "Membership ID"
// @Success 200 {object} response.Response
// @Router /memberships/{membershipId}/contributions [get]
func (h *ContributionHandler) ListByMembership(c *fiber.Ctx) error {
	membershipID, err := parseID(c, "membershipId")
	if err != nil {
		return response.BadRequest(c, "Invalid membership ID")
	}

	params := pagination.GetParams(c)
	contributions, total, err := h.contributionService.ListByMembership(c.Context(), membershipID, params.Offset, params.Limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to list contributions")
	}
	return response.Success(c, "Contributions retrieved", pagination.NewResponse(contributions, params, total))
}
