package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/workflow"
)

func listPurchasesHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		purchases, err := engine.ListPurchases(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"purchases": purchases})
	}
}

func recordPurchaseHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPurchase
		if err := c.ShouldBindJSON(&input); err != nil {
			abortWithBindError(c, err)
			return
		}
		purchase, err := engine.RecordPurchase(c.Request.Context(), input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, purchase)
	}
}

type transitionPurchaseRequest struct {
	AccountId string      `json:"account_id"`
	Price     typedAmount `json:"price"`
}

func transitionPurchaseHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transitionPurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithBindError(c, err)
			return
		}
		purchase, err := engine.TransitionToPurchased(c.Request.Context(), c.Param("id"), req.AccountId, req.Price.Decimal)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, purchase)
	}
}

func cancelPurchaseHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		purchase, err := engine.CancelPurchase(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, purchase)
	}
}

func deletePurchaseHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := engine.DeletePurchase(c.Request.Context(), c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
