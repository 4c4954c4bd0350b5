package routes

import (
	"chamapesa/internal/adapters/http/handlers"
	"chamapesa/internal/adapters/http/middleware"
	"chamapesa/internal/adapters/persistence/repositories"
	"chamapesa/internal/config"
	"chamapesa/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Setup wires repositories, services and handlers onto the app
func Setup(app *fiber.App, db *gorm.DB, cfg *config.Config, logger *zap.Logger) *services.SchedulerService {
	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	groupRepo := repositories.NewGroupRepository(db)
	membershipRepo := repositories.NewMembershipRepository(db)
	contributionRepo := repositories.NewContributionRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	loanPaymentRepo := repositories.NewLoanPaymentRepository(db)
	gatewayRepo := repositories.NewGatewayRepository(db)
	groupTxRepo := repositories.NewGroupTransactionRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	// Initialize services
	auditService := services.NewAuditService(auditRepo, logger)
	policyService := services.NewPolicyService(membershipRepo, logger)
	notifyService := services.NewNotificationService(cfg.SMS, logger)
	mpesaService := services.NewMpesaService(cfg.Mpesa, logger)
	eligibilityService := services.NewEligibilityService(contributionRepo, cfg.Loan.EligibilityMultiplier, logger)

	authService := services.NewAuthService(userRepo, refreshTokenRepo, cfg.JWT, logger)
	groupService := services.NewGroupService(groupRepo, membershipRepo, userRepo, groupTxRepo, policyService, logger)
	loanService := services.NewLoanService(
		loanRepo,
		membershipRepo,
		eligibilityService,
		policyService,
		mpesaService,
		auditService,
		notifyService,
		logger,
	)
	paymentService := services.NewPaymentService(loanRepo, loanPaymentRepo, policyService, auditService, notifyService, logger)
	contributionService := services.NewContributionService(contributionRepo, membershipRepo, gatewayRepo, mpesaService, auditService, logger)
	callbackService := services.NewCallbackService(gatewayRepo, auditService, logger)
	schedulerService := services.NewSchedulerService(loanRepo, gatewayRepo, notifyService, logger)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(authService, cfg)
	groupHandler := handlers.NewGroupHandler(groupService)
	contributionHandler := handlers.NewContributionHandler(contributionService)
	loanHandler := handlers.NewLoanHandler(loanService, paymentService)
	webhookHandler := handlers.NewPaymentWebhookHandler(callbackService, logger)

	// Public routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	api := app.Group("/api/v1")

	// Auth routes with stricter rate limiting
	auth := api.Group("/auth")
	auth.Post("/register", middleware.AuthRateLimiter(), authHandler.Register)
	auth.Post("/login", middleware.AuthRateLimiter(), authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	auth.Post("/logout", middleware.AuthMiddleware(cfg), authHandler.Logout)

	// Gateway webhooks are unauthenticated; the gateway cannot log in
	payments := api.Group("/payments")
	payments.Post("/callback", webhookHandler.STKCallback)
	payments.Post("/b2c/result", webhookHandler.B2CResult)
	payments.Post("/b2c/timeout", webhookHandler.B2CTimeout)

	// Everything below requires authentication
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	// Groups
	groups := protected.Group("/groups")
	groups.Post("", groupHandler.Create)
	groups.Get("", groupHandler.List)
	groups.Get("/:id", groupHandler.Get)
	groups.Post("/:id/members", groupHandler.AddMember)
	groups.Get("/:id/members", groupHandler.ListMembers)
	groups.Get("/:id/ledger", groupHandler.Ledger)
	groups.Get("/:id/balance", groupHandler.Balance)
	groups.Get("/:id/loans", loanHandler.ListByGroup)
	groups.Get("/:id/defaulters", loanHandler.Defaulters)
	groups.Get("/:id/contributions", contributionHandler.ListByGroup)

	// Memberships
	memberships := protected.Group("/memberships")
	memberships.Patch("/:membershipId/role", groupHandler.UpdateMemberRole)
	memberships.Get("/:membershipId/contributions", contributionHandler.ListByMembership)

	// Contributions
	contributions := protected.Group("/contributions")
	contributions.Post("", contributionHandler.Create)
	contributions.Get("/:id", contributionHandler.Get)
	contributions.Get("/:id/status", contributionHandler.QueryStatus)

	// Loans
	loans := protected.Group("/loans")
	loans.Post("", loanHandler.Apply)
	loans.Get("/:id", loanHandler.Get)
	loans.Post("/:id/decision", loanHandler.Decide)
	loans.Post("/:id/disburse", loanHandler.Disburse)
	loans.Post("/:id/restructure", loanHandler.Restructure)
	loans.Post("/:id/default", loanHandler.MarkDefaulted)
	loans.Get("/:id/schedule", loanHandler.Schedule)
	loans.Post("/:id/payments", loanHandler.RecordPayment)
	loans.Get("/:id/payments", loanHandler.ListPayments)

	return schedulerService
}
