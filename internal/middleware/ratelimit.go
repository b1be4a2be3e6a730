package middleware

import (
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// CallerLimiters hands out one token bucket per caller address.
type CallerLimiters struct {
	mu       sync.Mutex
	limiters map[common.Address]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewCallerLimiters(qps float64, burst int) *CallerLimiters {
	// 如果配置为0，不限流
	limit := rate.Limit(qps)
	if qps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &CallerLimiters{
		limiters: make(map[common.Address]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *CallerLimiters) Get(caller common.Address) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[caller]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[caller] = lim
	}
	return lim
}

func RateLimitMiddleware(limiters *CallerLimiters) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 必须在 CallerMiddleware 之后使用
		caller, ok := Caller(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		if !limiters.Get(caller).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
