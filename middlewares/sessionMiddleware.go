package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/redis/go-redis/v9"
)

const UserHeader = "X-User-Id"

func sessionKey(token string) string {
	return "Token:" + token
}

// SessionMiddleware resolves the "token" header to a user id through redis.
// Requests without a token pass through unauthenticated, except that
// X-User-Id is accepted when trustUserHeader is set.
func SessionMiddleware(rdb *redis.Client, trustUserHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			if userId := c.GetHeader(UserHeader); trustUserHeader && userId != "" {
				c.Request = c.Request.WithContext(utils.SetUserIdInContext(c.Request.Context(), userId))
			}
			c.Next()
			return
		}
		if rdb == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		userId, err := rdb.Get(c.Request.Context(), sessionKey(token)).Result()
		if err != nil || userId == "" {
			if err != nil && !errors.Is(err, redis.Nil) {
				_ = c.Error(err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Request = c.Request.WithContext(utils.SetUserIdInContext(c.Request.Context(), userId))
		c.Next()
	}
}

// RequireUser rejects requests that did not resolve to a user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userId, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok || userId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
