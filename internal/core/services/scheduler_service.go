package services

import (
	"context"
	"time"

	"chamapesa/internal/adapters/persistence/repositories"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// stalePushAge is how long an unanswered push payment stays PENDING
// before the sweeper expires it. Rail callbacks normally land within
// seconds.
const stalePushAge = 2 * time.Hour

// staleDisbursementAge is the reporting threshold for disbursements with
// no result or timeout webhook. These are never auto-resolved; an
// operator has to look at each one.
const staleDisbursementAge = 6 * time.Hour

// SchedulerService runs the periodic background jobs: the daily overdue
// scan and the hourly stale gateway sweep.
type SchedulerService struct {
	loanRepo    repositories.LoanRepository
	gatewayRepo repositories.GatewayRepository
	notify      *NotificationService
	logger      *zap.Logger
	cron        *cron.Cron
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(
	loanRepo repositories.LoanRepository,
	gatewayRepo repositories.GatewayRepository,
	notify *NotificationService,
	logger *zap.Logger,
) *SchedulerService {
	return &SchedulerService{
		loanRepo:    loanRepo,
		gatewayRepo: gatewayRepo,
		notify:      notify,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Start registers and launches the cron jobs
func (s *SchedulerService) Start() error {
	if _, err := s.cron.AddFunc("@daily", s.ScanOverdueLoans); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@hourly", s.SweepStaleGatewayTransactions); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// ScanOverdueLoans finds every ACTIVE loan past its due date and sends a
// reminder. The scan is advisory: no loan status changes here.
func (s *SchedulerService) ScanOverdueLoans() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	loans, err := s.loanRepo.FindAllOverdue(ctx, time.Now())
	if err != nil {
		s.logger.Error("overdue scan failed", zap.Error(err))
		return
	}
	s.logger.Info("overdue scan complete", zap.Int("overdue_loans", len(loans)))

	for _, loan := range loans {
		if loan.Membership == nil || loan.Membership.User == nil {
			continue
		}
		s.notify.NotifyOverdue(loan, loan.Membership.User.Phone)
	}
}

// SweepStaleGatewayTransactions expires push payments the rail never
// answered and reports disbursements stuck without a result webhook.
func (s *SchedulerService) SweepStaleGatewayTransactions() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now()
	expired, err := s.gatewayRepo.ExpireStalePush(ctx, now.Add(-stalePushAge))
	if err != nil {
		s.logger.Error("stale push expiry failed", zap.Error(err))
	} else if expired > 0 {
		s.logger.Info("stale push payments expired", zap.Int64("count", expired))
	}

	stuck, err := s.gatewayRepo.ListStaleDisbursements(ctx, now.Add(-staleDisbursementAge))
	if err != nil {
		s.logger.Error("stale disbursement scan failed", zap.Error(err))
		return
	}
	for _, pending := range stuck {
		s.logger.Warn("disbursement awaiting gateway result needs review",
			zap.String("correlation_id", pending.CorrelationID),
			zap.Time("created_at", pending.CreatedAt),
		)
	}
}
