package middleware

import (
	"net/http"
	"sync"
	"time"

	"carelink/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// rateLimiterStore holds a map of IP addresses to their rate limiters.
type rateLimiterStore struct {
	limiters map[string]*rate.Limiter
	perMin   int
	mu       sync.Mutex
}

func newRateLimiterStore(perMin int) *rateLimiterStore {
	if perMin <= 0 {
		perMin = 100
	}
	return &rateLimiterStore{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMin,
	}
}

// getLimiter returns the rate limiter for a given IP, creating one if it doesn't exist.
func (s *rateLimiterStore) getLimiter(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), s.perMin)
		s.limiters[ip] = limiter
	}
	return limiter
}

// RateLimitMiddleware limits each client IP to perMin requests per minute.
func RateLimitMiddleware(perMin int) gin.HandlerFunc {
	store := newRateLimiterStore(perMin)
	return func(c *gin.Context) {
		ip := getClientIP(c)
		if !store.getLimiter(ip).Allow() {
			utils.GetLogger().Warn("Rate limit exceeded", zap.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, utils.ErrorResponse{
				Code:    "rateLimited",
				Message: "Rate limit exceeded. Try again later.",
			})
			return
		}
		c.Next()
	}
}
