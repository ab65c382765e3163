package api

import (
	"net/http" // HTTP status codes

	"settlement_ledger/internal/batch"      // Bulk settlement
	"settlement_ledger/internal/cash"       // Cash reconciliation
	"settlement_ledger/internal/commission" // Commission settlement
	"settlement_ledger/internal/domain"     // Importing domain models
	"settlement_ledger/internal/engagement" // Engagement intake
	"settlement_ledger/internal/payout"     // Earnings payouts
	"settlement_ledger/internal/utils"      // Cache helpers
	"settlement_ledger/internal/withdrawal" // Withdrawal workflow

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact money arithmetic
)

// RecordEngagementHandler inserts or refreshes a delivery engagement reported by fulfillment
func RecordEngagementHandler(recorder *engagement.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c)
		if !ok {
			return
		}
		var in engagement.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		eng, err := recorder.Record(c.Request.Context(), actor, in)
		respond(c, http.StatusOK, eng, err, "Engagement recorded")
	}
}

// PendingCashHandler lists completed engagements still holding collected cash
func PendingCashHandler(engine *cash.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := engine.Pending(c.Request.Context(), uintQuery(c, "delivery_agent_id"))
		respond(c, http.StatusOK, list, err, "Pending cash collections retrieved")
	}
}

// CashSubmissionBody is one cash hand-back
type CashSubmissionBody struct {
	Amount decimal.Decimal `json:"amount"`
}

// SubmitCashHandler records cash handed back for an engagement
func SubmitCashHandler(engine *cash.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c)
		if !ok {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		var body CashSubmissionBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		eng, err := engine.SubmitCash(c.Request.Context(), actor, id, body.Amount)
		respond(c, http.StatusOK, eng, err, "Cash submission recorded")
	}
}

// SubmissionsHandler lists the cash hand-backs of an engagement
func SubmissionsHandler(engine *cash.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		list, err := engine.Submissions(c.Request.Context(), id)
		respond(c, http.StatusOK, list, err, "Cash submissions retrieved")
	}
}

// PayEarningsHandler pays the delivery agent of one completed engagement
func PayEarningsHandler(processor *payout.Processor, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c)
		if !ok {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		out, err := processor.ProcessPayout(c.Request.Context(), actor, id)
		if err == nil {
			utils.InvalidateWallet(c.Request.Context(), rdb, out.Engagement.DeliveryAgentID)
		}
		respond(c, http.StatusOK, out, err, "Earnings paid")
	}
}

// RecordCommissionHandler stores a pending credit or debit statement
func RecordCommissionHandler(settler *commission.Settler) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c)
		if !ok {
			return
		}
		var in commission.StatementInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		st, err := settler.Record(c.Request.Context(), actor, in)
		respond(c, http.StatusCreated, st, err, "Commission statement recorded")
	}
}

// SettleCommissionHandler posts one pending statement to the seller's wallet
func SettleCommissionHandler(settler *commission.Settler, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c)
		if !ok {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		out, err := settler.SettleStatement(c.Request.Context(), actor, id)
		if err == nil {
			utils.InvalidateWallet(c.Request.Context(), rdb, out.Statement.SellerID)
		}
		respond(c, http.StatusOK, out, err, "Commission settled")
	}
}

// DecisionBody approves or rejects a withdrawal request
type DecisionBody struct {
	Status string `json:"status" binding:"required"` // approved or rejected
	Remark string `json:"remark"`                    // Optional note for the payee
}

// DecideWithdrawalHandler approves or rejects a pending withdrawal request
func DecideWithdrawalHandler(workflow *withdrawal.Workflow, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c)
		if !ok {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		var body DecisionBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		req, err := workflow.Decide(c.Request.Context(), actor, id, body.Status, body.Remark)
		if err == nil {
			utils.InvalidateWallet(c.Request.Context(), rdb, req.PayeeID)
		}
		respond(c, http.StatusOK, req, err, "Withdrawal request "+body.Status)
	}
}

// ListWithdrawalsHandler lists withdrawal requests, filtered by payee_id and status
func ListWithdrawalsHandler(workflow *withdrawal.Workflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := pageParams(c)
		list, err := workflow.List(c.Request.Context(), withdrawal.Filter{
			PayeeID:  uintQuery(c, "payee_id"),
			Status:   domain.WithdrawalStatus(c.Query("status")),
			Page:     page,
			PageSize: pageSize,
		})
		respond(c, http.StatusOK, list, err, "Withdrawal requests retrieved")
	}
}

// SettleAllHandler runs one settlement action over every selected entity
func SettleAllHandler(orch *batch.Orchestrator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c)
		if !ok {
			return
		}
		var sel batch.Selector
		if err := c.ShouldBindJSON(&sel); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		report, err := orch.SettleAll(c.Request.Context(), actor, sel)
		if err == nil {
			for _, owner := range report.Owners() {
				utils.InvalidateWallet(c.Request.Context(), rdb, owner)
			}
		}
		respond(c, http.StatusOK, report, err, "Batch settlement finished")
	}
}
