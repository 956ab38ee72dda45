package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/mmdatafocus/ledger_backend/workflow"
)

func listLendBorrowsHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := engine.ListLendBorrows(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"lend_borrows": records})
	}
}

func createLendBorrowHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewLendBorrow
		if err := c.ShouldBindJSON(&input); err != nil {
			abortWithBindError(c, err)
			return
		}
		record, err := engine.CreateLendBorrow(c.Request.Context(), input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func settleLendBorrowHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := engine.SettleLendBorrow(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

// runReconciliationHandler checks the caller's own ledger and returns the findings.
func runReconciliationHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		reports, err := engine.RunReconciliationChecks(c.Request.Context(), userId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reports": reports, "clean": len(reports) == 0})
	}
}
