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

// LoanHandler handles loan lifecycle endpoints
type LoanHandler struct {
	loanService    *services.LoanService
	paymentService *services.PaymentService
}

// NewLoanHandler creates a new loan handler
func NewLoanHandler(loanService *services.LoanService, paymentService *services.PaymentService) *LoanHandler {
	return &LoanHandler{
		loanService:    loanService,
		paymentService: paymentService,
	}
}

// Apply handles a loan application
// @Summary Apply for a loan
// @Description Apply for a loan against own membership, subject to eligibility
// @Tags Loans
// @Accept json
// @Produce json
// @Param body body services.ApplyLoanInput true "Application data"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /loans [post]
func (h *LoanHandler) Apply(c *fiber.Ctx) error {
	var input services.ApplyLoanInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if fields := validation.Struct(&input); fields != nil {
		return response.ValidationError(c, fields)
	}

	loan, err := h.loanService.Apply(c.Context(), &input, middleware.UserID(c), c.IP())
	if err != nil {
		var eligErr *services.EligibilityError
		switch {
		case errors.As(err, &eligErr):
			return response.BadRequest(c, eligErr.Error())
		case errors.Is(err, domain.ErrMembershipNotFound):
			return response.NotFound(c, "Membership not found")
		case errors.Is(err, domain.ErrNotMembershipOwner):
			return response.Forbidden(c, "A member may only apply for themselves")
		default:
			return response.InternalServerError(c, "Failed to create loan application")
		}
	}
	return response.Created(c, "Loan application submitted", loan)
}

// Decide approves or rejects a pending loan
// @Summary Approve or reject loan
// @Description Decide a PENDING loan; approval computes repayment terms
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/decision [post]
func (h *LoanHandler) Decide(c *fiber.Ctx) error {
	loanID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var body struct {
		Decision string `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if fields := validation.Struct(&body); fields != nil {
		return response.ValidationError(c, fields)
	}

	loan, err := h.loanService.ApproveOrReject(c.Context(), loanID, body.Decision, middleware.UserID(c), c.IP())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, domain.ErrForbidden):
			return response.Forbidden(c, "Only group admins or treasurers may decide loans")
		case errors.Is(err, domain.ErrLoanNotUpdatable):
			return response.Conflict(c, "Loan is not pending decision")
		default:
			return response.InternalServerError(c, "Failed to decide loan")
		}
	}
	return response.Success(c, "Loan decision recorded", loan)
}

// Disburse pays out an approved loan
// @Summary Disburse loan
// @Description Activate an APPROVED loan and send funds via mobile money
// @Tags Loans
// @Produce json
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/disburse [post]
func (h *LoanHandler) Disburse(c *fiber.Ctx) error {
	loanID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.Disburse(c.Context(), loanID, middleware.UserID(c), c.IP())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, domain.ErrForbidden):
			return response.Forbidden(c, "Only group admins or treasurers may disburse loans")
		case errors.Is(err, domain.ErrLoanNotApproved):
			return response.Conflict(c, "Loan is not in APPROVED status")
		default:
			return response.InternalServerError(c, "Failed to disburse loan")
		}
	}
	return response.Success(c, "Loan disbursed", loan)
}

// Restructure changes a loan's terms
// @Summary Restructure loan
// @Description Recompute repayment terms with new rate and/or duration
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path int true "Loan ID"
// @Param body body services.RestructureInput true "New terms"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/restructure [post]
func (h *LoanHandler) Restructure(c *fiber.Ctx) error {
	loanID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var input services.RestructureInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if fields := validation.Struct(&input); fields != nil {
		return response.ValidationError(c, fields)
	}

	loan, err := h.loanService.Restructure(c.Context(), loanID, &input, middleware.UserID(c), c.IP())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRestructureNotes):
			return response.BadRequest(c, "Restructure notes are required")
		case errors.Is(err, domain.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, domain.ErrForbidden):
			return response.Forbidden(c, "Only group admins or treasurers may restructure loans")
		case errors.Is(err, domain.ErrLoanNotUpdatable):
			return response.Conflict(c, "Only approved or active loans can be restructured")
		default:
			return response.InternalServerError(c, "Failed to restructure loan")
		}
	}
	return response.Success(c, "Loan restructured", loan)
}

// Get retrieves one loan
// @Summary Get loan
// @Tags Loans
// @Produce json
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /loans/{id} [get]
func (h *LoanHandler) Get(c *fiber.Ctx) error {
	loanID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.GetByID(c.Context(), loanID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return response.NotFound(c, "Loan not found")
		}
		return response.InternalServerError(c, "Failed to get loan")
	}
	return response.Success(c, "Loan retrieved", loan)
}

// Schedule returns the repayment schedule
// @Summary Loan repayment schedule
// @Tags Loans
// @Produce json
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Router /loans/{id}/schedule [get]
func (h *LoanHandler) Schedule(c *fiber.Ctx) error {
	loanID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	schedule, err := h.loanService.GenerateSchedule(c.Context(), loanID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return response.NotFound(c, "Loan not found")
		}
		return response.InternalServerError(c, "Failed to generate schedule")
	}
	return response.Success(c, "Schedule generated", schedule)
}

// ListByGroup lists a group's loans
// @Summary List group loans
// @Tags Loans
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Response
// @Router /groups/{id}/loans [get]
func (h *LoanHandler) ListByGroup(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid group ID")
	}

	params := pagination.GetParams(c)
	loans, total, err := h.loanService.ListByGroup(c.Context(), groupID, params.Offset, params.Limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to list loans")
	}
	return response.Success(c, "Loans retrieved", pagination.NewResponse(loans, params, total))
}

// Defaulters lists overdue active loans in a group
// @Summary List defaulters
// @Description Active loans past their due date, with payment history
// @Tags Loans
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /groups/{id}/defaulters [get]
func (h *LoanHandler) Defaulters(c *fiber.Ctx) error {
	groupID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid group ID")
	}

	loans, err := h.loanService.FindDefaulters(c.Context(), groupID, middleware.UserID(c))
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			return response.Forbidden(c, "Only group officials may view defaulters")
		}
		return response.InternalServerError(c, "Failed to list defaulters")
	}
	return response.Success(c, "Defaulters retrieved", loans)
}

// MarkDefaulted flags an overdue loan as defaulted
// @Summary Mark loan defaulted
// @Tags Loans
// @Produce json
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/default [post]
func (h *LoanHandler) MarkDefaulted(c *fiber.Ctx) error {
	loanID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.MarkDefaulted(c.Context(), loanID, middleware.UserID(c), c.IP())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, domain.ErrForbidden):
			return response.Forbidden(c, "Only group admins or treasurers may mark defaults")
		case errors.Is(err, domain.ErrLoanNotUpdatable):
			return response.Conflict(c, "Loan is not overdue or not active")
		default:
			return response.InternalServerError(c, "Failed to mark loan defaulted")
		}
	}
	return response.Success(c, "Loan marked defaulted", loan)
}

// RecordPayment records a repayment against an active loan
// @Summary Record loan payment
// @Description Append a repayment; duplicate reference codes are rejected
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path int true "Loan ID"
// @Param body body services.RecordPaymentInput true "Payment data"
// @Success 201 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/payments [post]
func (h *LoanHandler) RecordPayment(c *fiber.Ctx) error {
	loanID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var input services.RecordPaymentInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	input.LoanID = loanID
	if fields := validation.Struct(&input); fields != nil {
		return response.ValidationError(c, fields)
	}

	payment, err := h.paymentService.RecordPayment(c.Context(), &input, middleware.UserID(c), c.IP())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, domain.ErrForbidden):
			return response.Forbidden(c, "Only group admins or treasurers may record payments")
		case errors.Is(err, domain.ErrLoanNotActive):
			return response.Conflict(c, "Cannot record payment for this loan")
		case errors.Is(err, domain.ErrDuplicateReference):
			return response.Conflict(c, "A payment with this reference code already exists")
		default:
			return response.InternalServerError(c, "Failed to record payment")
		}
	}
	return response.Created(c, "Payment recorded", payment)
}

// ListPayments returns a loan's payment history
// @Summary List loan payments
// @Tags Loans
// @Produce json
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Router /loans/{id}/payments [get]
func (h *LoanHandler) ListPayments(c *fiber.Ctx) error {
	loanID, err := parseID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	payments, err := h.paymentService.ListByLoan(c.Context(), loanID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return response.NotFound(c, "Loan not found")
		}
		return response.InternalServerError(c, "Failed to list payments")
	}

	balance, err := h.paymentService.OutstandingBalance(c.Context(), loanID)
	if err != nil {
		return response.InternalServerError(c, "Failed to compute balance")
	}
	return response.Success(c, "Payments retrieved", fiber.Map{
		"payments":            payments,
		"outstanding_balance": balance,
	})
}
