package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/adapters/persistence/repositories"

	"go.uber.org/zap"
)

// CallbackService reconciles asynchronous gateway webhooks against
// pending transactions. Every handler is idempotent: a replayed webhook
// resolves to a no-op, and handler errors are contained so the HTTP
// layer can always acknowledge the gateway.
type CallbackService struct {
	gatewayRepo repositories.GatewayRepository
	audit       *AuditService
	logger      *zap.Logger
}

// NewCallbackService creates a new callback service
func NewCallbackService(gatewayRepo repositories.GatewayRepository, audit *AuditService, logger *zap.Logger) *CallbackService {
	return &CallbackService{gatewayRepo: gatewayRepo, audit: audit, logger: logger}
}

// STKCallbackPayload mirrors the gateway's push-payment callback body
type STKCallbackPayload struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []MetadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// MetadataItem is one name/value pair from callback metadata
type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// B2CResultPayload mirrors the gateway's disbursement result body
type B2CResultPayload struct {
	Result struct {
		ResultType               int    `json:"ResultType"`
		ResultCode               int    `json:"ResultCode"`
		ResultDesc               string `json:"ResultDesc"`
		OriginatorConversationID string `json:"OriginatorConversationID"`
		ConversationID           string `json:"ConversationID"`
		TransactionID            string `json:"TransactionID"`
		ResultParameters         struct {
			ResultParameter []MetadataItem `json:"ResultParameter"`
		} `json:"ResultParameters"`
	} `json:"Result"`
}

// HandleSTKCallback applies a push-payment result. Success marks the
// matched contribution PAID and writes the ledger entry; failure only
// closes the pending row. Unknown correlation ids are logged and dropped.
func (s *CallbackService) HandleSTKCallback(ctx context.Context, payload *STKCallbackPayload) {
	cb := payload.Body.StkCallback
	res := repositories.PushResolution{
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		PaidAt:            time.Now(),
	}
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			res.ReceiptNumber = itemString(item.Value)
		case "Amount":
			res.Amount = itemFloat(item.Value)
		case "PhoneNumber":
			res.PhoneNumber = itemString(item.Value)
		case "TransactionDate":
			if t, ok := itemTime(item.Value); ok {
				res.PaidAt = t
			}
		}
	}

	outcome, err := s.gatewayRepo.ResolvePush(ctx, res)
	if err != nil {
		s.logger.Error("stk callback resolution failed",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.Error(err),
		)
		return
	}
	s.reportOutcome("stk callback", cb.CheckoutRequestID, cb.ResultCode, outcome)
}

// HandleB2CResult applies a disbursement result. Success confirms the
// loan's disbursement; failure closes the pending row and leaves the
// loan untouched for operator review.
func (s *CallbackService) HandleB2CResult(ctx context.Context, payload *B2CResultPayload) {
	r := payload.Result
	res := repositories.DisbursementResolution{
		ConversationID: r.ConversationID,
		ResultCode:     r.ResultCode,
		ResultDesc:     r.ResultDesc,
		ReceiptNumber:  r.TransactionID,
	}
	for _, item := range r.ResultParameters.ResultParameter {
		if item.Name == "TransactionAmount" {
			res.Amount = itemFloat(item.Value)
		}
	}

	outcome, err := s.gatewayRepo.ResolveDisbursementResult(ctx, res)
	if err != nil {
		s.logger.Error("b2c result resolution failed",
			zap.String("conversation_id", r.ConversationID),
			zap.Error(err),
		)
		return
	}
	if outcome != nil && !outcome.AlreadyResolved && !outcome.NotFound && r.ResultCode != 0 {
		s.logger.Error("disbursement failed at gateway, loan left active for review",
			zap.String("conversation_id", r.ConversationID),
			zap.Int("result_code", r.ResultCode),
			zap.String("result_desc", r.ResultDesc),
		)
	}
	s.reportOutcome("b2c result", r.ConversationID, r.ResultCode, outcome)
}

// HandleB2CTimeout reverts a still-pending disbursement: the loan drops
// back to APPROVED and a reversal entry balances the ledger.
func (s *CallbackService) HandleB2CTimeout(ctx context.Context, payload *B2CResultPayload) {
	conversationID := payload.Result.ConversationID
	outcome, err := s.gatewayRepo.ResolveDisbursementTimeout(ctx, conversationID)
	if err != nil {
		s.logger.Error("b2c timeout resolution failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}
	s.reportOutcome("b2c timeout", conversationID, -1, outcome)
}

func (s *CallbackService) reportOutcome(kind, correlationID string, resultCode int, outcome *repositories.ResolveOutcome) {
	if outcome == nil {
		return
	}
	switch {
	case outcome.NotFound:
		s.logger.Warn("webhook for unknown correlation id dropped",
			zap.String("kind", kind),
			zap.String("correlation_id", correlationID),
		)
	case outcome.AlreadyResolved:
		s.logger.Info("webhook replay ignored",
			zap.String("kind", kind),
			zap.String("correlation_id", correlationID),
		)
	case outcome.TargetMissing:
		s.logger.Warn("webhook resolved but target record did not match",
			zap.String("kind", kind),
			zap.String("correlation_id", correlationID),
		)
	default:
		s.logger.Info("webhook applied",
			zap.String("kind", kind),
			zap.String("correlation_id", correlationID),
			zap.Int("result_code", resultCode),
		)
		s.audit.Record(context.Background(), AuditEntry{
			Action: models.AuditCallbackApplied,
			LoanID: outcome.LoanID,
			NewValue: models.JSON{
				"kind":           kind,
				"correlation_id": correlationID,
				"result_code":    resultCode,
			},
		})
	}
}

// Callback metadata values arrive untyped; receipts can be strings or
// numbers depending on the field.
func itemString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func itemFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

// itemTime decodes the gateway's YYYYMMDDHHMMSS numeric timestamp
func itemTime(v interface{}) (time.Time, bool) {
	raw := itemString(v)
	t, err := time.ParseInLocation("20060102150405", raw, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
