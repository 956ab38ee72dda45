package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/workflow"
)

// RegisterRoutes mounts the ledger endpoints on rg. Every route expects the
// user id to be present in the request context.
func RegisterRoutes(rg *gin.RouterGroup, engine *workflow.Engine) {
	rg.GET("/accounts", listAccountsHandler(engine))
	rg.POST("/accounts", createAccountHandler(engine))
	rg.GET("/accounts/:id", getAccountHandler(engine))
	rg.PATCH("/accounts/:id", updateAccountHandler(engine))
	rg.DELETE("/accounts/:id", deleteAccountHandler(engine))
	rg.POST("/accounts/:id/deactivate", deactivateAccountHandler(engine))
	rg.POST("/accounts/:id/recompute", recomputeBalanceHandler(engine))
	rg.GET("/accounts/:id/transactions", listTransactionsHandler(engine))
	rg.GET("/accounts/:id/dps-transfers", listDpsTransfersHandler(engine))
	rg.POST("/accounts/:id/dps", enableDpsHandler(engine))
	rg.DELETE("/accounts/:id/dps", disableDpsHandler(engine))
	rg.POST("/accounts/:id/dps/delete", deleteDpsHandler(engine))
	rg.GET("/totals", totalBalancesHandler(engine))

	rg.POST("/transactions", addTransactionHandler(engine))
	rg.GET("/transactions/:id", getTransactionHandler(engine))
	rg.PATCH("/transactions/:id", updateTransactionHandler(engine))
	rg.DELETE("/transactions/:id", deleteTransactionHandler(engine))

	rg.GET("/transfers", listTransfersHandler(engine))
	rg.POST("/transfers/currency", currencyTransferHandler(engine))
	rg.POST("/transfers/in-between", inBetweenTransferHandler(engine))
	rg.POST("/transfers/dps", dpsTransferHandler(engine))
	rg.DELETE("/transfers/:transferId", deleteTransferHandler(engine))

	rg.GET("/purchases", listPurchasesHandler(engine))
	rg.POST("/purchases", recordPurchaseHandler(engine))
	rg.POST("/purchases/:id/purchase", transitionPurchaseHandler(engine))
	rg.POST("/purchases/:id/cancel", cancelPurchaseHandler(engine))
	rg.DELETE("/purchases/:id", deletePurchaseHandler(engine))

	rg.GET("/lend-borrows", listLendBorrowsHandler(engine))
	rg.POST("/lend-borrows", createLendBorrowHandler(engine))
	rg.POST("/lend-borrows/:id/settle", settleLendBorrowHandler(engine))

	rg.POST("/reconciliation/run", runReconciliationHandler(engine))
}
