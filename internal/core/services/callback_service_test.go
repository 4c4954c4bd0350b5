package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chamapesa/internal/adapters/persistence/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newCallbackServiceForTest(gatewayRepo *mockGatewayRepo) *CallbackService {
	logger := zap.NewNop()
	auditRepo := new(mockAuditRepo)
	auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	return NewCallbackService(gatewayRepo, NewAuditService(auditRepo, logger), logger)
}

const successSTKBody = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1500.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20250619103045},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

const failedSTKBody = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`

func TestCallbackServiceHandleSTKCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes untyped metadata and resolves", func(t *testing.T) {
		gatewayRepo := new(mockGatewayRepo)

		contributionID := uint(12)
		gatewayRepo.On("ResolvePush", ctx, mock.MatchedBy(func(res repositories.PushResolution) bool {
			return res.CheckoutRequestID == "ws_CO_191220191020363925" &&
				res.ResultCode == 0 &&
				res.ReceiptNumber == "NLJ7RT61SV" &&
				res.Amount == 1500.0 &&
				res.PhoneNumber == "254708374149" &&
				res.PaidAt.Equal(time.Date(2025, 6, 19, 10, 30, 45, 0, time.Local))
		})).Return(&repositories.ResolveOutcome{ContributionID: &contributionID}, nil)

		var payload STKCallbackPayload
		assert.NoError(t, json.Unmarshal([]byte(successSTKBody), &payload))

		svc := newCallbackServiceForTest(gatewayRepo)
		svc.HandleSTKCallback(ctx, &payload)

		gatewayRepo.AssertExpectations(t)
	})

	t.Run("failure callback carries no metadata", func(t *testing.T) {
		gatewayRepo := new(mockGatewayRepo)

		gatewayRepo.On("ResolvePush", ctx, mock.MatchedBy(func(res repositories.PushResolution) bool {
			return res.ResultCode == 1032 && res.ReceiptNumber == ""
		})).Return(&repositories.ResolveOutcome{}, nil)

		var payload STKCallbackPayload
		assert.NoError(t, json.Unmarshal([]byte(failedSTKBody), &payload))

		svc := newCallbackServiceForTest(gatewayRepo)
		svc.HandleSTKCallback(ctx, &payload)

		gatewayRepo.AssertExpectations(t)
	})

	t.Run("replayed webhook is a no-op", func(t *testing.T) {
		gatewayRepo := new(mockGatewayRepo)
		gatewayRepo.On("ResolvePush", ctx, mock.Anything).
			Return(&repositories.ResolveOutcome{AlreadyResolved: true}, nil)

		var payload STKCallbackPayload
		assert.NoError(t, json.Unmarshal([]byte(successSTKBody), &payload))

		svc := newCallbackServiceForTest(gatewayRepo)
		svc.HandleSTKCallback(ctx, &payload)
		svc.HandleSTKCallback(ctx, &payload)

		gatewayRepo.AssertNumberOfCalls(t, "ResolvePush", 2)
	})

	t.Run("unknown correlation id is dropped quietly", func(t *testing.T) {
		gatewayRepo := new(mockGatewayRepo)
		gatewayRepo.On("ResolvePush", ctx, mock.Anything).
			Return(&repositories.ResolveOutcome{NotFound: true}, nil)

		var payload STKCallbackPayload
		assert.NoError(t, json.Unmarshal([]byte(successSTKBody), &payload))

		svc := newCallbackServiceForTest(gatewayRepo)
		assert.NotPanics(t, func() {
			svc.HandleSTKCallback(ctx, &payload)
		})
	})
}

const b2cResultBody = `{
  "Result": {
    "ResultType": 0,
    "ResultCode": 0,
    "ResultDesc": "The service request is processed successfully.",
    "OriginatorConversationID": "10571-7910404-1",
    "ConversationID": "AG_20250619_0000593b1e",
    "TransactionID": "NLJ41HAY6Q",
    "ResultParameters": {
      "ResultParameter": [
        {"Name": "TransactionAmount", "Value": 10000},
        {"Name": "TransactionReceipt", "Value": "NLJ41HAY6Q"}
      ]
    }
  }
}`

func TestCallbackServiceHandleB2CResult(t *testing.T) {
	ctx := context.Background()

	t.Run("success confirms the disbursement", func(t *testing.T) {
		gatewayRepo := new(mockGatewayRepo)

		loanID := uint(5)
		gatewayRepo.On("ResolveDisbursementResult", ctx, mock.MatchedBy(func(res repositories.DisbursementResolution) bool {
			return res.ConversationID == "AG_20250619_0000593b1e" &&
				res.ResultCode == 0 &&
				res.ReceiptNumber == "NLJ41HAY6Q" &&
				res.Amount == 10000.0
		})).Return(&repositories.ResolveOutcome{LoanID: &loanID}, nil)

		var payload B2CResultPayload
		assert.NoError(t, json.Unmarshal([]byte(b2cResultBody), &payload))

		svc := newCallbackServiceForTest(gatewayRepo)
		svc.HandleB2CResult(ctx, &payload)

		gatewayRepo.AssertExpectations(t)
	})

	t.Run("failure result does not panic and still resolves", func(t *testing.T) {
		gatewayRepo := new(mockGatewayRepo)
		loanID := uint(5)
		gatewayRepo.On("ResolveDisbursementResult", ctx, mock.Anything).
			Return(&repositories.ResolveOutcome{LoanID: &loanID}, nil)

		var payload B2CResultPayload
		assert.NoError(t, json.Unmarshal([]byte(b2cResultBody), &payload))
		payload.Result.ResultCode = 2001

		svc := newCallbackServiceForTest(gatewayRepo)
		assert.NotPanics(t, func() {
			svc.HandleB2CResult(ctx, &payload)
		})
	})
}

func TestCallbackServiceHandleB2CTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("timeout reverts via the gateway repository", func(t *testing.T) {
		gatewayRepo := new(mockGatewayRepo)
		loanID := uint(5)
		gatewayRepo.On("ResolveDisbursementTimeout", ctx, "AG_20250619_0000593b1e").
			Return(&repositories.ResolveOutcome{LoanID: &loanID}, nil)

		var payload B2CResultPayload
		assert.NoError(t, json.Unmarshal([]byte(b2cResultBody), &payload))

		svc := newCallbackServiceForTest(gatewayRepo)
		svc.HandleB2CTimeout(ctx, &payload)

		gatewayRepo.AssertExpectations(t)
	})

	t.Run("timeout after result already landed is ignored", func(t *testing.T) {
		gatewayRepo := new(mockGatewayRepo)
		gatewayRepo.On("ResolveDisbursementTimeout", ctx, mock.Anything).
			Return(&repositories.ResolveOutcome{AlreadyResolved: true}, nil)

		var payload B2CResultPayload
		assert.NoError(t, json.Unmarshal([]byte(b2cResultBody), &payload))

		svc := newCallbackServiceForTest(gatewayRepo)
		assert.NotPanics(t, func() {
			svc.HandleB2CTimeout(ctx, &payload)
		})
	})
}

func TestMetadataItemCoercion(t *testing.T) {
	assert.Equal(t, "NLJ7RT61SV", itemString("NLJ7RT61SV"))
	assert.Equal(t, "254708374149", itemString(254708374149.0))
	assert.Equal(t, 1500.0, itemFloat(1500.0))
	assert.Equal(t, 1500.5, itemFloat("1500.50"))
	assert.Equal(t, 0.0, itemFloat(nil))

	parsed, ok := itemTime(20250619103045.0)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 19, 10, 30, 45, 0, time.Local), parsed)

	_, ok = itemTime("garbage")
	assert.False(t, ok)
}
