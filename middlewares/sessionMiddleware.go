package middlewares

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionMiddleware resolves the caller's session and copies the tenant scope
// onto the request context. Every downstream query reads business id from
// there; a request without one fails inside the handler, not here.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		token := c.Request.Header.Get("token")
		if token != "" {
			username, exists, err := config.GetRedisValue("Token:" + token)
			if err != nil || !exists {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			ctx = utils.SetTokenInContext(ctx, token)
			ctx = utils.SetUsernameInContext(ctx, username)
		}

		if businessId := c.Request.Header.Get("X-Business-Id"); businessId != "" {
			ctx = utils.SetBusinessIdInContext(ctx, businessId)
		}
		if userId, err := strconv.Atoi(c.Request.Header.Get("X-User-Id")); err == nil && userId > 0 {
			ctx = utils.SetUserIdInContext(ctx, userId)
		}
		if shopId, err := strconv.Atoi(c.Request.Header.Get("X-Shop-Id")); err == nil && shopId > 0 {
			ctx = utils.SetShopIdInContext(ctx, shopId)
		}

		correlationId := c.Request.Header.Get("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
		c.Header("X-Correlation-Id", correlationId)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
