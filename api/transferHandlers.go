package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/mmdatafocus/ledger_backend/workflow"
)

// listTransfersHandler returns malformed groups as warnings next to the data.
func listTransfersHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		transfers, violations, err := engine.ListTransfers(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		if transfers == nil {
			transfers = []models.Transfer{}
		}
		if violations == nil {
			violations = []*models.InvariantViolation{}
		}
		c.JSON(http.StatusOK, gin.H{"transfers": transfers, "warnings": violations})
	}
}

func currencyTransferHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCurrencyTransfer
		if err := c.ShouldBindJSON(&input); err != nil {
			abortWithBindError(c, err)
			return
		}
		transfer, err := engine.TransferCurrency(c.Request.Context(), input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, transfer)
	}
}

func inBetweenTransferHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewInBetweenTransfer
		if err := c.ShouldBindJSON(&input); err != nil {
			abortWithBindError(c, err)
			return
		}
		transfer, err := engine.TransferInBetween(c.Request.Context(), input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, transfer)
	}
}

func dpsTransferHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDpsTransfer
		if err := c.ShouldBindJSON(&input); err != nil {
			abortWithBindError(c, err)
			return
		}
		record, err := engine.TransferDps(c.Request.Context(), input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func listDpsTransfersHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := engine.ListDpsTransfers(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"dps_transfers": records})
	}
}

// deleteTransferHandler removes both legs; ?force=true also clears a broken pair.
func deleteTransferHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		transferId := c.Param("transferId")
		if !utils.IsTransactionId(transferId) {
			abortWithError(c, models.NewValidationError("transfer_id", "%q is not a transfer id", transferId))
			return
		}
		force := c.Query("force") == "true"
		if err := engine.DeleteTransfer(c.Request.Context(), transferId, force); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
