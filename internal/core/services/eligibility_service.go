package services

import (
	"context"
	"fmt"

	"chamapesa/internal/adapters/persistence/repositories"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EligibilityResult is the outcome of an eligibility check
type EligibilityResult struct {
	IsEligible  bool    `json:"is_eligible"`
	MaxLoanable float64 `json:"max_loanable"`
	TotalPaid   float64 `json:"total_paid"`
}

// EligibilityError is returned when a requested amount exceeds the
// member's ceiling. The message carries the computed ceiling so the
// caller can self-correct.
type EligibilityError struct {
	Requested   float64
	MaxLoanable float64
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("loan amount exceeds your eligible limit of %.2f", e.MaxLoanable)
}

// EligibilityService derives a member's maximum borrowing capacity from
// paid contribution history. Pure read, safe to call repeatedly.
type EligibilityService struct {
	contributionRepo repositories.ContributionRepository
	multiplier       float64
	logger           *zap.Logger
}

// NewEligibilityService creates a new eligibility service
func NewEligibilityService(contributionRepo repositories.ContributionRepository, multiplier float64, logger *zap.Logger) *EligibilityService {
	return &EligibilityService{
		contributionRepo: contributionRepo,
		multiplier:       multiplier,
		logger:           logger,
	}
}

// Calculate computes the ceiling for a membership and checks the
// requested amount against it
func (s *EligibilityService) Calculate(ctx context.Context, membershipID uint, requestedAmount float64) (*EligibilityResult, error) {
	totalPaid, err := s.contributionRepo.SumPaidByMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}

	max, _ := decimal.NewFromFloat(totalPaid).
		Mul(decimal.NewFromFloat(s.multiplier)).
		Round(2).
		Float64()

	return &EligibilityResult{
		IsEligible:  requestedAmount <= max,
		MaxLoanable: max,
		TotalPaid:   totalPaid,
	}, nil
}
