package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/config"

	"go.uber.org/zap"
)

// NotificationService sends SMS notices over an HTTP gateway. All sends
// are fire-and-forget: a failed notice is logged and never fails the
// operation that triggered it. With no gateway configured, sends are
// logged and skipped.
type NotificationService struct {
	cfg        config.SMSConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(cfg config.SMSConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// NotifyLoanDecision tells the applicant their loan was approved or rejected
func (s *NotificationService) NotifyLoanDecision(loan *models.Loan, phone string) {
	var msg string
	switch loan.Status {
	case models.LoanApproved:
		msg = fmt.Sprintf("Your loan of %.2f has been approved. Repayment total: %.2f.", loan.Amount, deref(loan.RepaymentAmount))
	case models.LoanRejected:
		msg = fmt.Sprintf("Your loan application of %.2f was not approved.", loan.Amount)
	default:
		return
	}
	go s.send(phone, msg)
}

// NotifyDisbursement tells the borrower funds are on the way
func (s *NotificationService) NotifyDisbursement(loan *models.Loan, phone string) {
	msg := fmt.Sprintf("Your loan of %.2f has been disbursed. First installment of %.2f is due %s.",
		loan.Amount, deref(loan.MonthlyInstallment), formatDue(loan.DueDate))
	go s.send(phone, msg)
}

// NotifyLoanSettled congratulates a borrower on full repayment
func (s *NotificationService) NotifyLoanSettled(loan *models.Loan, phone string) {
	msg := fmt.Sprintf("Your loan of %.2f is fully repaid. Thank you.", loan.Amount)
	go s.send(phone, msg)
}

// NotifyOverdue reminds a borrower about a missed installment
func (s *NotificationService) NotifyOverdue(loan *models.Loan, phone string) {
	msg := fmt.Sprintf("Your loan installment of %.2f was due on %s. Please pay to avoid default.",
		deref(loan.MonthlyInstallment), formatDue(loan.DueDate))
	go s.send(phone, msg)
}

func (s *NotificationService) send(phone, message string) {
	if phone == "" {
		return
	}
	if s.cfg.APIURL == "" {
		s.logger.Info("sms gateway not configured, notice skipped",
			zap.String("phone", phone),
			zap.String("message", message),
		)
		return
	}

	body, _ := json.Marshal(map[string]string{
		"to":      phone,
		"from":    s.cfg.SenderID,
		"message": message,
	})
	req, err := http.NewRequest(http.MethodPost, s.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("sms request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("sms send failed", zap.String("phone", phone), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Error("sms gateway rejected notice",
			zap.String("phone", phone),
			zap.Int("status", resp.StatusCode),
		)
		return
	}
	s.logger.Info("sms sent", zap.String("phone", phone))
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func formatDue(t *time.Time) string {
	if t == nil {
		return "soon"
	}
	return t.Format("02 Jan 2006")
}
