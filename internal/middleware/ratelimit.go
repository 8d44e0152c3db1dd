package middleware

import (
    "context"
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    log "github.com/sirupsen/logrus"

    "github.com/iliyamo/fiche-cuisine/internal/config"
)

// tokenBucketScript refills and takes one token atomically. It returns
// {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])
    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)
    return { allowed, tokens, retry_after_ms }
`)

// bucketResult is the decoded reply of tokenBucketScript.
type bucketResult struct {
    Allowed   bool
    Remaining int64
    RetryMs   int64
}

// RetryAfter rounds the wait up to whole seconds for the Retry-After header.
func (b bucketResult) RetryAfter() int {
    secs := int(math.Ceil(float64(b.RetryMs) / 1000.0))
    if secs < 0 { secs = 0 }
    return secs
}

// NewTokenBucket limits requests with a token bucket kept in Redis. One
// instance guards the whole API; a second one with the sync scope guards
// the Zenchef import so the upstream quota is not drained. It is a
// pass-through when disabled, when rdb is nil, and when Redis errors.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return func(c echo.Context) error { return next(c) } }
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if skipRateLimit(cfg, c) {
                return next(c)
            }
            key := buildRateKey(cfg, c)
            res, err := takeToken(c.Request().Context(), rdb, cfg, key, time.Now())
            if err != nil {
                if cfg.Debug {
                    log.WithError(err).WithField("key", key).Warn("ratelimit: redis error")
                }
                return next(c)
            }

            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
            if !res.Allowed {
                secs := res.RetryAfter()
                c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
                log.WithFields(log.Fields{"key": key, "scope": cfg.Scope, "retry_after": secs}).Info("ratelimit: blocked")
                return c.JSON(http.StatusTooManyRequests, map[string]any{
                    "error":       "too_many_requests",
                    "message":     rejectMessage(cfg),
                    "retry_after": secs,
                })
            }
            if cfg.Debug {
                c.Response().Header().Set("X-RateLimit-Key", key)
            }
            return next(c)
        }
    }
}

func takeToken(ctx context.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string, now time.Time) (bucketResult, error) {
    vals, err := tokenBucketScript.Run(ctx, rdb, []string{key},
        now.UnixMilli(),
        cfg.Capacity,
        cfg.RefillTokens,
        cfg.RefillInterval.Milliseconds(),
        int64(cfg.TTL/time.Second),
    ).Result()
    if err != nil {
        return bucketResult{}, err
    }
    res, ok := parseBucketResult(vals)
    if !ok {
        return bucketResult{}, fmt.Errorf("unexpected script result %#v", vals)
    }
    return res, nil
}

func parseBucketResult(vals interface{}) (bucketResult, bool) {
    arr, ok := vals.([]interface{})
    if !ok || len(arr) != 3 {
        return bucketResult{}, false
    }
    return bucketResult{
        Allowed:   asInt64(arr[0]) == 1,
        Remaining: asInt64(arr[1]),
        RetryMs:   asInt64(arr[2]),
    }, true
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64: return t
    case int32: return int64(t)
    case int: return int64(t)
    case float64: return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil { return n }
    }
    return 0
}

// skipRateLimit lets the API-wide bucket ignore routes that carry their
// own bucket.
func skipRateLimit(cfg config.RateLimitConfig, c echo.Context) bool {
    for _, p := range cfg.SkipPaths {
        if c.Path() == p {
            return true
        }
    }
    return false
}

func rejectMessage(cfg config.RateLimitConfig) string {
    if cfg.Scope == config.RateLimitScopeSync {
        return "zenchef sync rate limit exceeded, retry later"
    }
    return "rate limit exceeded"
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    if cfg.Scope != "" {
        parts = append(parts, cfg.Scope)
    }
    ip := c.RealIP()
    if ip == "" { ip = "unknown" }
    // /sync and /sync/ share one bucket
    route := c.Request().Method + " " + strings.TrimSuffix(c.Path(), "/")

    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "route":
        parts = append(parts, "route", route)
    default: // "ip_route"
        parts = append(parts, "ip", ip, "route", route)
    }
    return strings.Join(parts, ":")
}
