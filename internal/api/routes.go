package api

import (
	"settlement_ledger/internal/batch"      // Bulk settlement
	"settlement_ledger/internal/cash"       // Cash reconciliation
	"settlement_ledger/internal/commission" // Commission settlement
	"settlement_ledger/internal/engagement" // Engagement intake
	"settlement_ledger/internal/ledger"     // Wallet store
	"settlement_ledger/internal/middleware" // Auth middleware
	"settlement_ledger/internal/payout"     // Earnings payouts
	"settlement_ledger/internal/withdrawal" // Withdrawal workflow

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// Services bundles everything the HTTP layer calls into
type Services struct {
	DB          *gorm.DB
	Redis       *redis.Client
	JWTSecret   string
	Ledger      *ledger.Store
	Cash        *cash.Engine
	Payouts     *payout.Processor
	Withdrawals *withdrawal.Workflow
	Commissions *commission.Settler
	Engagements *engagement.Recorder
	Batch       *batch.Orchestrator
}

// RegisterRoutes mounts the public, wallet and admin routes on r
func RegisterRoutes(r *gin.Engine, s Services) {
	// Auth routes
	r.POST("/user", RegisterHandler(s.DB))                 // Registration endpoint
	r.POST("/user/login", LoginHandler(s.DB, s.JWTSecret)) // Login endpoint

	authenticated := []gin.HandlerFunc{middleware.JWTAuthMiddleware(s.JWTSecret), middleware.ActorMiddleware(s.DB)}

	// Wallet routes (any authenticated payee)
	walletGroup := r.Group("/wallet", authenticated...)
	walletGroup.GET("", GetWalletHandler(s.Ledger, s.Redis))
	walletGroup.GET("/transactions", GetTransactionHistoryHandler(s.Ledger, s.Redis))
	walletGroup.POST("/withdrawals", CreateWithdrawalHandler(s.Withdrawals, s.Redis))
	walletGroup.GET("/withdrawals", ListMyWithdrawalsHandler(s.Withdrawals))

	// Admin routes (staff only; each operation checks its own permission)
	adminGroup := r.Group("/admin", append(authenticated, middleware.StaffOnlyMiddleware())...)
	adminGroup.POST("/engagements", RecordEngagementHandler(s.Engagements))
	adminGroup.GET("/cash-collections", PendingCashHandler(s.Cash))
	adminGroup.POST("/cash-collections/:id/submit", SubmitCashHandler(s.Cash))
	adminGroup.GET("/cash-collections/:id/submissions", SubmissionsHandler(s.Cash))
	adminGroup.POST("/earnings/:id/pay", PayEarningsHandler(s.Payouts, s.Redis))
	adminGroup.POST("/commissions", RecordCommissionHandler(s.Commissions))
	adminGroup.POST("/commissions/:id/settle", SettleCommissionHandler(s.Commissions, s.Redis))
	adminGroup.POST("/withdrawals/:id/decide", DecideWithdrawalHandler(s.Withdrawals, s.Redis))
	adminGroup.GET("/withdrawals", ListWithdrawalsHandler(s.Withdrawals))
	adminGroup.POST("/settlements", SettleAllHandler(s.Batch, s.Redis))
}
