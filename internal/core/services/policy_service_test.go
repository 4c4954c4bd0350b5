package services

import (
	"context"
	"testing"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestPolicyServiceCanPerform(t *testing.T) {
	ctx := context.Background()

	roleOf := func(role string) *models.Membership {
		return &models.Membership{ID: 1, UserID: 10, GroupID: 3, Role: role}
	}

	tests := []struct {
		name    string
		role    string
		action  string
		allowed bool
	}{
		{"any member may apply", models.RoleMember, ActionApplyLoan, true},
		{"member may not approve", models.RoleMember, ActionApproveLoan, false},
		{"treasurer may approve", models.RoleTreasurer, ActionApproveLoan, true},
		{"admin may disburse", models.RoleAdmin, ActionDisburseLoan, true},
		{"secretary may not disburse", models.RoleSecretary, ActionDisburseLoan, false},
		{"secretary may view defaulters", models.RoleSecretary, ActionViewDefaulters, true},
		{"member may not view defaulters", models.RoleMember, ActionViewDefaulters, false},
		{"treasurer may record payments", models.RoleTreasurer, ActionRecordPayment, true},
		{"admin may manage group", models.RoleAdmin, ActionManageGroup, true},
		{"secretary may not manage group", models.RoleSecretary, ActionManageGroup, false},
		{"unknown action denied", models.RoleAdmin, "loan:unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			membershipRepo := new(mockMembershipRepo)
			membershipRepo.On("GetByUserAndGroup", ctx, uint(10), uint(3)).Return(roleOf(tt.role), nil)

			svc := NewPolicyService(membershipRepo, zap.NewNop())
			err := svc.CanPerform(ctx, 10, tt.action, 3)

			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrForbidden)
			}
		})
	}

	t.Run("non-member is forbidden", func(t *testing.T) {
		membershipRepo := new(mockMembershipRepo)
		membershipRepo.On("GetByUserAndGroup", ctx, uint(99), uint(3)).Return(nil, gorm.ErrRecordNotFound)

		svc := NewPolicyService(membershipRepo, zap.NewNop())
		err := svc.CanPerform(ctx, 99, ActionApplyLoan, 3)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}
