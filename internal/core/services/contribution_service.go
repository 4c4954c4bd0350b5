package services

import (
	"context"
	"errors"
	"fmt"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/adapters/persistence/repositories"
	"chamapesa/internal/core/domain"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ContributionService creates member contributions and, for mobile-money
// payments, drives them through the push-payment flow.
type ContributionService struct {
	contributionRepo repositories.ContributionRepository
	membershipRepo   repositories.MembershipRepository
	gatewayRepo      repositories.GatewayRepository
	mpesa            MpesaClient
	audit            *AuditService
	logger           *zap.Logger
}

// NewContributionService creates a new contribution service
func NewContributionService(
	contributionRepo repositories.ContributionRepository,
	membershipRepo repositories.MembershipRepository,
	gatewayRepo repositories.GatewayRepository,
	mpesa MpesaClient,
	audit *AuditService,
	logger *zap.Logger,
) *ContributionService {
	return &ContributionService{
		contributionRepo: contributionRepo,
		membershipRepo:   membershipRepo,
		gatewayRepo:      gatewayRepo,
		mpesa:            mpesa,
		audit:            audit,
		logger:           logger,
	}
}

// CreateContributionInput represents a new contribution
type CreateContributionInput struct {
	MembershipID  uint    `json:"membership_id" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod string  `json:"payment_method" validate:"required,oneof=MPESA CASH BANK"`
	PhoneNumber   string  `json:"phone_number,omitempty"`
}

// Create records a PENDING contribution. An MPESA contribution also
// fires an STK push and registers the returned CheckoutRequestID so the
// callback can find its way back; the contribution stays PENDING until
// the gateway confirms. A failed push marks the contribution FAILED
// immediately.
func (s *ContributionService) Create(ctx context.Context, input *CreateContributionInput, actorID uint, ip string) (*models.Contribution, error) {
	membership, err := s.membershipRepo.GetByID(ctx, input.MembershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	if membership.UserID != actorID {
		return nil, domain.ErrNotMembershipOwner
	}

	contribution := &models.Contribution{
		MembershipID:  membership.ID,
		GroupID:       membership.GroupID,
		Amount:        input.Amount,
		Status:        models.ContributionPending,
		PaymentMethod: input.PaymentMethod,
	}
	if err := s.contributionRepo.Create(ctx, contribution); err != nil {
		return nil, err
	}

	if input.PaymentMethod == "MPESA" {
		phone := input.PhoneNumber
		if phone == "" && membership.User != nil {
			phone = membership.User.Phone
		}
		push, err := s.mpesa.InitiateSTKPush(ctx, STKPushRequest{
			PhoneNumber:      phone,
			Amount:           input.Amount,
			AccountReference: fmt.Sprintf("CHAMA-%d", membership.GroupID),
			Description:      "group contribution",
		})
		if err != nil {
			s.logger.Error("stk push initiation failed",
				zap.Uint("contribution_id", contribution.ID),
				zap.Error(err),
			)
			if failErr := s.contributionRepo.UpdateStatus(ctx, contribution.ID, models.ContributionFailed); failErr != nil {
				s.logger.Error("failed to mark contribution FAILED",
					zap.Uint("contribution_id", contribution.ID),
					zap.Error(failErr),
				)
			}
			return nil, fmt.Errorf("payment prompt failed: %w", err)
		}

		if err := s.gatewayRepo.CreatePending(ctx, &models.PendingGatewayTransaction{
			CorrelationID:  push.CheckoutRequestID,
			Kind:           models.GatewayKindPush,
			Status:         models.GatewayPending,
			ContributionID: &contribution.ID,
		}); err != nil {
			return nil, err
		}
	}

	s.audit.Record(ctx, AuditEntry{
		Action:       models.AuditContribution,
		ActorID:      actorID,
		MembershipID: &membership.ID,
		NewValue: models.JSON{
			"contribution_id": contribution.ID,
			"amount":          input.Amount,
			"method":          input.PaymentMethod,
		},
		IPAddress: ip,
	})
	return contribution, nil
}

// GetByID returns a contribution
func (s *ContributionService) GetByID(ctx context.Context, id uint) (*models.Contribution, error) {
	contribution, err := s.contributionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrContributionNotFound
		}
		return nil, err
	}
	return contribution, nil
}

// QueryPushStatus polls the gateway for an unresolved push payment. This
// is a convenience for clients; reconciliation itself only trusts the
// callback path.
func (s *ContributionService) QueryPushStatus(ctx context.Context, contributionID uint) (*STKQueryResponse, error) {
	contribution, err := s.GetByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if contribution.Status != models.ContributionPending {
		return nil, domain.ErrPendingTxResolved
	}
	pending, err := s.gatewayRepo.FindOpenPushByContribution(ctx, contribution.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPendingTxNotFound
		}
		return nil, err
	}
	return s.mpesa.QuerySTKStatus(ctx, pending.CorrelationID)
}

// ListByGroup lists a group's contributions with pagination
func (s *ContributionService) ListByGroup(ctx context.Context, groupID uint, offset, limit int) ([]*models.Contribution, int64, error) {
	return s.contributionRepo.ListByGroup(ctx, groupID, offset, limit)
}

// ListByMembership lists one member's contributions
func (s *ContributionService) ListByMembership(ctx context.Context, membershipID uint, offset, limit int) ([]*models.Contribution, int64, error) {
	return s.contributionRepo.ListByMembership(ctx, membershipID, offset, limit)
}
