package handlers

import (
	"context"
	"net/http"
	"time"

	"classifieds-marketplace/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimitByOwner limits requests per X-User-ID, falling back to the client IP
func RateLimitByOwner(limiter *ratelimit.KeyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderUserID)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Too many requests. Please try again later.",
			})
			return
		}
		c.Next()
	}
}

// RequestTimeout bounds every downstream call made with the request context
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
