package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"

	"kitchen_requests/internal/logger"
	rediskey "kitchen_requests/pkg/redis"
)

// luaRateLimit is a sliding window counter.
// KEYS[1]=window key, ARGV: now, windowStart, windowSec, member, limit.
// Returns the count inside the window after this call, or -1 when over the limit.
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`

// CreateRateLimit limits request creation per customer, falling back to the client
// IP when the body carries no customerId. Redis errors let the request through.
func CreateRateLimit(rdb *rd.Client, limit int, window time.Duration, log *logger.Logger) gin.HandlerFunc {
	windowSec := int64(window / time.Second)
	if windowSec < 1 {
		windowSec = 1
	}
	return func(c *gin.Context) {
		var key string
		if customerID, err := extractCustomerID(c); err == nil && customerID > 0 {
			key = rediskey.CreateRateLimitKey(customerID)
		} else {
			key = rediskey.CreateRateLimitIPKey(c.ClientIP())
		}

		now := time.Now()
		member := fmt.Sprintf("%d", now.UnixNano())
		res, err := rdb.Eval(c.Request.Context(), luaRateLimit, []string{key},
			now.Unix(), now.Unix()-windowSec, windowSec, member, limit).Int()
		if err != nil {
			log.Warn("rate limit unavailable", "key", key, "err", err)
			c.Next()
			return
		}
		if res < 0 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":  http.StatusTooManyRequests,
				"msg":   "too many requests, retry later",
				"error": "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// extractCustomerID peeks at the JSON body and restores it for the handler.
func extractCustomerID(c *gin.Context) (uint, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return 0, err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	var req struct {
		CustomerID uint `json:"customerId"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return 0, err
	}
	return req.CustomerID, nil
}
