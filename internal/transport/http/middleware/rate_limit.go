package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"streamchat/internal/transport/http/response"
)

// Limiter decides whether a request from key may proceed inside the
// current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit enforces the process-wide fixed window per client IP. It
// runs before authentication: an over-limit request is rejected
// without its credential ever being evaluated. A limiter backend
// error lets the request through; availability wins over strictness
// there.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Printf("rate limiter check failed: %v", err)
			c.Next()
			return
		}
		if !allowed {
			response.AbortError(c, http.StatusTooManyRequests, "too many requests")
			return
		}
		c.Next()
	}
}
