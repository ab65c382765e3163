package api

import (
	"net/http" // HTTP status codes

	"settlement_ledger/internal/domain"     // Importing domain models
	"settlement_ledger/internal/ledger"     // Wallet reads
	"settlement_ledger/internal/utils"      // Cache helpers
	"settlement_ledger/internal/withdrawal" // Withdrawal workflow

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact money arithmetic
	"github.com/sirupsen/logrus"    // Structured logging
)

// walletView is the cached wallet payload
type walletView struct {
	Wallet domain.Wallet   `json:"wallet"`
	Equity decimal.Decimal `json:"equity"`
	Cached bool            `json:"cached"`
}

// GetWalletHandler returns the caller's wallet, creating an empty one on first read
func GetWalletHandler(store *ledger.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		// The generation is read before the wallet, so a view loaded ahead of a
		// concurrent mutation lands under a retired key
		gen, genErr := utils.CacheGeneration(ctx, rdb, actor.ActorID)
		cacheKey := utils.WalletCacheKey(actor.ActorID, gen)
		var view walletView
		if genErr == nil {
			if found, err := utils.GetCache(ctx, rdb, cacheKey, &view); err == nil && found {
				view.Cached = true
				respond(c, http.StatusOK, view, nil, "Wallet retrieved")
				return
			} else if err != nil {
				logrus.WithFields(logrus.Fields{"key": cacheKey, "error": err.Error()}).Warn("Cache read failed")
			}
		} else {
			logrus.WithFields(logrus.Fields{"owner_id": actor.ActorID, "error": genErr.Error()}).Warn("Cache generation read failed")
		}
		w, err := store.Get(ctx, actor.ActorID)
		if err != nil {
			respond(c, 0, nil, err, "")
			return
		}
		view = walletView{Wallet: *w, Equity: w.Equity()}
		if genErr == nil {
			_ = utils.SetCache(ctx, rdb, cacheKey, view, utils.CacheTTL)
		}
		respond(c, http.StatusOK, view, nil, "Wallet retrieved")
	}
}

// historyView is the cached history payload
type historyView struct {
	*ledger.Page
	TotalPages int  `json:"total_pages"`
	Cached     bool `json:"cached"`
}

// GetTransactionHistoryHandler returns the caller's ledger entries, newest first
func GetTransactionHistoryHandler(store *ledger.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		page, pageSize := pageParams(c)
		gen, genErr := utils.CacheGeneration(ctx, rdb, actor.ActorID)
		cacheKey := utils.HistoryCacheKey(actor.ActorID, gen, page, pageSize)
		var view historyView
		if genErr == nil {
			if found, err := utils.GetCache(ctx, rdb, cacheKey, &view); err == nil && found {
				view.Cached = true
				respond(c, http.StatusOK, view, nil, "Transactions retrieved")
				return
			}
		}
		p, err := store.History(ctx, actor.ActorID, page, pageSize)
		if err != nil {
			respond(c, 0, nil, err, "")
			return
		}
		view = historyView{Page: p, TotalPages: (int(p.Total) + p.PageSize - 1) / p.PageSize}
		if genErr == nil {
			_ = utils.SetCache(ctx, rdb, cacheKey, view, utils.CacheTTL)
		}
		respond(c, http.StatusOK, view, nil, "Transactions retrieved")
	}
}

// WithdrawalRequestBody asks to withdraw from the caller's wallet
type WithdrawalRequestBody struct {
	Amount decimal.Decimal `json:"amount"` // Amount to block and withdraw
	Note   string          `json:"note"`   // Optional note for the reviewer
}

// CreateWithdrawalHandler blocks funds in the caller's wallet and opens a pending request
func CreateWithdrawalHandler(workflow *withdrawal.Workflow, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c)
		if !ok {
			return
		}
		var body WithdrawalRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		payeeType := domain.PayeeType(actor.Role)
		if !payeeType.Valid() {
			respond(c, 0, nil, domain.Forbidden("only sellers and delivery agents hold withdrawable wallets"), "")
			return
		}
		req, err := workflow.CreateRequest(c.Request.Context(), actor, withdrawal.CreateInput{
			PayeeID:   actor.ActorID,
			PayeeType: payeeType,
			Amount:    body.Amount,
			Note:      body.Note,
		})
		if err == nil {
			utils.InvalidateWallet(c.Request.Context(), rdb, actor.ActorID)
		}
		respond(c, http.StatusCreated, req, err, "Withdrawal request submitted")
	}
}

// ListMyWithdrawalsHandler lists the caller's withdrawal requests
func ListMyWithdrawalsHandler(workflow *withdrawal.Workflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorOf(c)
		if !ok {
			return
		}
		page, pageSize := pageParams(c)
		list, err := workflow.List(c.Request.Context(), withdrawal.Filter{
			PayeeID:  actor.ActorID,
			Status:   domain.WithdrawalStatus(c.Query("status")),
			Page:     page,
			PageSize: pageSize,
		})
		respond(c, http.StatusOK, list, err, "Withdrawal requests retrieved")
	}
}
