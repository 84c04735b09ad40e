package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/feedgate/pkg/response"
)

// RateLimit applies a process-wide token bucket: max requests per
// window with a burst of max, matching the edge limiter the mesh has
// always run (100 per 15 minutes by default).
func RateLimit(max int, window time.Duration) gin.HandlerFunc {
	if max <= 0 {
		max = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	limiter := rate.NewLimiter(rate.Every(window/time.Duration(max)), max)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			response.Error(c, http.StatusTooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
