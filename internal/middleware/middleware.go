// Package middleware holds the gin middleware shared by the HTTP surface:
// panic recovery, per-IP rate limiting, request IDs, and security headers.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"codecell/internal/logging"
)

// ErrorResponse is the standardized JSON error body.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Recovery converts panics in handlers into a 500 response instead of taking
// the process down. Session-level panics are handled inside the session
// package; this covers the plain HTTP endpoints.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		logging.L().Error("panic recovered",
			zap.String("request_id", requestID),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
		)

		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "Internal server error",
			Code:      "INTERNAL_SERVER_ERROR",
			Timestamp: time.Now().UTC(),
			RequestID: requestID,
		})
	})
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter manages one token bucket per client IP.
type IPRateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
}

func NewIPRateLimiter(rateLimit rate.Limit, burst int) *IPRateLimiter {
	l := &IPRateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rateLimit,
		burst:    burst,
		cleanup:  10 * time.Minute,
	}
	go l.cleanupRoutine()
	return l
}

// GetLimiter returns the limiter for an IP, creating it on first sight.
func (l *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.limiters[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

// cleanupRoutine drops limiters for IPs not seen in the last hour so the map
// cannot grow without bound.
func (l *IPRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-time.Hour)
		for ip, c := range l.limiters {
			if c.lastSeen.Before(cutoff) {
				delete(l.limiters, ip)
			}
		}
		l.mu.Unlock()
	}
}

var globalRateLimiter *IPRateLimiter

// InitRateLimiter sets up the shared per-IP limiter.
func InitRateLimiter(requestsPerMinute, burst int) {
	globalRateLimiter = NewIPRateLimiter(rate.Limit(requestsPerMinute)/60, burst)
}

// RateLimit throttles requests per client IP. This is a transport-level cap;
// the authentication cooldown is enforced separately by the abuse guard.
func RateLimit() gin.HandlerFunc {
	if globalRateLimiter == nil {
		InitRateLimiter(300, 30)
	}

	return func(c *gin.Context) {
		if !globalRateLimiter.GetLimiter(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error:     "Rate limit exceeded",
				Code:      "RATE_LIMIT_EXCEEDED",
				Timestamp: time.Now().UTC(),
				RequestID: c.GetHeader("X-Request-ID"),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestID tags every request with a unique identifier for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// Security adds the standard hardening headers.
func Security() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

func generateRequestID() string {
	randomBytes := make([]byte, 4)
	rand.Read(randomBytes)
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(randomBytes))
}
