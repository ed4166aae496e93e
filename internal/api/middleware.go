package api

import (
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/auth"
	"github.com/tripmate/companion/internal/metrics"
	"github.com/tripmate/companion/internal/ratelimit"
)

// metricsMiddleware counts requests by route template so that path
// parameters do not explode the label space.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Inc()
	}
}

func byIP(c *gin.Context) string { return c.ClientIP() }

func byUser(c *gin.Context) string { return auth.UserID(c) }

// rateLimit rejects requests over rule with 429 and a Retry-After header.
// Allowed requests carry X-RateLimit-Remaining. Limiter errors fail open.
func (s *Server) rateLimit(rule ratelimit.Rule, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Limiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		id := key(c)
		if ok, _ := s.Limiter.Allow(ctx, id, rule); ok {
			if left, err := s.Limiter.Remaining(ctx, id, rule); err == nil {
				c.Header("X-RateLimit-Remaining", strconv.Itoa(left))
			}
			c.Next()
			return
		}

		retry := s.Limiter.RetryAfter(ctx, id, rule)
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
		if rule == ratelimit.RuleMessage {
			metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, try again later"})
	}
}

// writeError sends err as {"error": msg}. Internal errors are logged since
// their text is hidden from the client.
func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}
	return true
}

// queryLimit parses ?limit=, applying def when absent and capping at ceiling.
func queryLimit(c *gin.Context, def, ceiling int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	if n > ceiling {
		n = ceiling
	}
	return n, true
}
