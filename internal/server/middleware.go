package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"charity-auction/internal/metrics"
	"charity-auction/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := c.Writer.Status()
	elapsed := time.Since(start)

	metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
	metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

	utils.Info("HTTP Request", map[string]any{
		"component": "http",
		"method":    c.Request.Method,
		"path":      c.Request.URL.Path,
		"status":    status,
		"latency":   elapsed.String(),
	})
}

const (
	throttleClientTTL      = 10 * time.Minute
	throttleCleanupEvery   = time.Minute
	throttleRetryAfterSecs = "1"
)

type throttleClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ThrottleMiddleware applies a token bucket per client IP. Idle clients are
// forgotten by a cleanup loop that stops with ctx.
func ThrottleMiddleware(ctx context.Context, rps float64, burst int) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*throttleClient)
	)

	go func() {
		ticker := time.NewTicker(throttleCleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				for ip, client := range clients {
					if time.Since(client.lastSeen) > throttleClientTTL {
						delete(clients, ip)
					}
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		client, ok := clients[ip]
		if !ok {
			client = &throttleClient{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			clients[ip] = client
		}
		client.lastSeen = time.Now()
		allowed := client.limiter.Allow()
		mu.Unlock()

		if !allowed {
			c.Header("Retry-After", throttleRetryAfterSecs)
			utils.JSONError(c, http.StatusTooManyRequests, errors.New("too many requests"), "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
