package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/workflow"
)

func listTransactionsHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := engine.ListTransactions(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": rows})
	}
}

func addTransactionHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewTransaction
		if err := c.ShouldBindJSON(&input); err != nil {
			abortWithBindError(c, err)
			return
		}
		t, err := engine.AddTransaction(c.Request.Context(), input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

func getTransactionHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := engine.GetTransaction(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

func updateTransactionHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch models.TransactionPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			abortWithBindError(c, err)
			return
		}
		t, err := engine.UpdateTransaction(c.Request.Context(), c.Param("id"), patch)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

func deleteTransactionHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := engine.DeleteTransaction(c.Request.Context(), c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
