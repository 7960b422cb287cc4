package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "costledger/internal/core/context"
)

// HeaderActorID names the user the surrounding application authenticated.
const HeaderActorID = "X-Actor-ID"

// Actor puts the acting user on the request context. Requests without the
// header post as "system".
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader(HeaderActorID); userID != "" {
			ctx := appctx.WithActor(c.Request.Context(), &appctx.Actor{UserID: userID, Source: "api"})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
