package http

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/pixelgrid/chatcore/internal/core"
)

// limiterPool keeps one token bucket per caller.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	return &limiterPool{
		m:     make(map[string]*rate.Limiter),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(p.rps, p.burst)
	p.m[key] = l
	return l
}

// RateLimitMiddleware throttles API calls per caller identity. Engine-level
// append limits still apply underneath; this guards the whole surface.
func RateLimitMiddleware(pool *limiterPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := mustIdentity(c)
		if !ok {
			c.Abort()
			return
		}
		res := pool.get(who.ID).Reserve()
		if wait := res.Delay(); wait > 0 {
			res.Cancel()
			c.Header("Retry-After", strconv.FormatFloat(wait.Seconds(), 'f', -1, 64))
			c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error:      "too many requests",
				Code:       core.ErrCodeRateLimited,
				RetryAfter: wait.Seconds(),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
