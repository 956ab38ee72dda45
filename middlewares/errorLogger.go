package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
)

// ErrorLogger logs the errors handlers attached with c.Error.
func ErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		fields := logrus.Fields{
			"field":  "http",
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}
		if cid, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
			fields["correlation_id"] = cid
		}
		if userId, ok := utils.GetUserIdFromContext(c.Request.Context()); ok {
			fields["user_id"] = userId
		}
		logger.WithFields(fields).Error(c.Errors.String())
	}
}
