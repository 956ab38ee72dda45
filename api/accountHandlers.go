package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/workflow"
)

// listAccountsHandler hides DPS savings accounts unless ?all=true.
func listAccountsHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		list := engine.ListVisibleAccounts
		if c.Query("all") == "true" {
			list = engine.ListAccounts
		}
		accounts, err := list(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"accounts": accounts})
	}
}

func createAccountHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAccount
		if err := c.ShouldBindJSON(&input); err != nil {
			abortWithBindError(c, err)
			return
		}
		account, err := engine.CreateAccount(c.Request.Context(), input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, account)
	}
}

func getAccountHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := engine.GetAccount(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func updateAccountHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch models.AccountPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			abortWithBindError(c, err)
			return
		}
		account, err := engine.UpdateAccount(c.Request.Context(), c.Param("id"), patch)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func deactivateAccountHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := engine.DeactivateAccount(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func deleteAccountHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := engine.DeleteAccount(c.Request.Context(), c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func recomputeBalanceHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		balance, err := engine.RecomputeBalance(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"account_id": id, "calculated_balance": balance})
	}
}

func totalBalancesHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		totals, err := engine.TotalBalances(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"totals": totals})
	}
}

func enableDpsHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg models.DpsConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			abortWithBindError(c, err)
			return
		}
		account, err := engine.EnableDps(c.Request.Context(), c.Param("id"), cfg)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func disableDpsHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := engine.DisableDps(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

type deleteDpsRequest struct {
	Destination models.DpsDestination `json:"destination"`
}

func deleteDpsHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req deleteDpsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithBindError(c, err)
			return
		}
		result, err := engine.DeleteDpsWithTransfer(c.Request.Context(), c.Param("id"), req.Destination)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
