package config

import (
    "os"
    "strconv"
    "time"
)

// Rate limit scopes. Each scope keeps its own buckets in Redis.
const (
    RateLimitScopeAPI  = "api"
    RateLimitScopeSync = "sync"
)

// RateLimitConfig drives one Redis token bucket. KeyStrategy is "ip",
// "route" or "ip_route". SkipPaths lists route patterns the bucket ignores.
type RateLimitConfig struct {
    Enabled        bool
    Scope          string
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    SkipPaths      []string
    Debug          bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables for the API-wide bucket.
// RATE_LIMIT_BURST and RATE_LIMIT_REFILL_EVERY are shorthands that override
// capacity and refill.
func LoadRateLimitConfig() RateLimitConfig {
    return loadBucket("RATE_LIMIT", RateLimitConfig{
        Enabled:        true,
        Scope:          RateLimitScopeAPI,
        Capacity:       60,
        RefillTokens:   1,
        RefillInterval: time.Second,
        TTL:            10 * time.Minute,
        KeyStrategy:    "ip_route",
    })
}

// LoadSyncRateLimitConfig reads RATE_LIMIT_SYNC_* variables for the bucket
// in front of the Zenchef import. Every sync fans out to upstream page
// requests that count against the restaurant's API quota, so the bucket is
// shared by all clients (route key) and refills slowly: 3 calls, then one
// per minute.
func LoadSyncRateLimitConfig() RateLimitConfig {
    return loadBucket("RATE_LIMIT_SYNC", RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Scope:          RateLimitScopeSync,
        Capacity:       3,
        RefillTokens:   1,
        RefillInterval: time.Minute,
        TTL:            time.Hour,
        KeyStrategy:    "route",
    })
}

func loadBucket(env string, def RateLimitConfig) RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:        envBool(env+"_ENABLED", def.Enabled),
        Scope:          def.Scope,
        Capacity:       envInt(env+"_CAPACITY", def.Capacity),
        RefillTokens:   envInt(env+"_REFILL_TOKENS", def.RefillTokens),
        RefillInterval: envDur(env+"_REFILL_INTERVAL", def.RefillInterval),
        TTL:            envDur(env+"_TTL", def.TTL),
        KeyStrategy:    envStr(env+"_KEY_STRATEGY", def.KeyStrategy),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "fiche:rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }
    if b := envInt(env+"_BURST", -1); b > 0 { cfg.Capacity = b }
    if every := envDur(env+"_REFILL_EVERY", 0); every > 0 {
        cfg.RefillTokens = 1
        cfg.RefillInterval = every
    }
    if cfg.Capacity < 1 { cfg.Capacity = 1 }
    if cfg.RefillTokens < 1 { cfg.RefillTokens = 1 }
    if cfg.RefillInterval <= 0 { cfg.RefillInterval = time.Second }
    minTTL := 5 * cfg.RefillInterval
    if cfg.TTL < minTTL { cfg.TTL = minTTL }
    return cfg
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
    v := os.Getenv(k)
    if v == "" { return d }
    switch v {
    case "1","true","TRUE","True","yes","YES","on","ON": return true
    case "0","false","FALSE","False","no","NO","off","OFF": return false
    }
    return d
}
func envInt(k string, d int) int {
    v := os.Getenv(k); if v == "" { return d }
    if n, err := strconv.Atoi(v); err == nil { return n }
    return d
}
func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k); if v == "" { return d }
    if dur, err := time.ParseDuration(v); err == nil { return dur }
    return d
}
