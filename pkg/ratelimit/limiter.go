// Package ratelimit throttles API traffic with a token bucket kept in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	redis "github.com/redis/go-redis/v9"
)

// IdentityType is the subject a rate limit decision is keyed on.
type IdentityType int

const (
	// IdentityAnonymous is traffic not bound to a session, keyed by client IP.
	IdentityAnonymous IdentityType = iota
	// IdentitySession is traffic addressed to one ordering session, keyed by
	// its ID.
	IdentitySession
)

func (t IdentityType) String() string {
	if t == IdentitySession {
		return "session"
	}
	return "anonymous"
}

// Rule is the policy for one identity on one endpoint.
type Rule struct {
	Limit  int
	Burst  int
	Window time.Duration
}

// Result is the outcome of one decision.
type Result struct {
	Allowed      bool
	Remaining    int
	RetryAfter   time.Duration
	Limit        int
	Window       time.Duration
	ResetAfter   time.Duration
	IdentityKey  string
	EndpointKey  string
	IdentityType IdentityType
}

var decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ratelimit_decisions_total",
	Help: "Rate limit decisions by identity type and outcome",
}, []string{"identity", "result"})

// Limiter implements a Redis-backed token bucket.
type Limiter struct {
	client redis.Cmdable
	cfg    config.RateLimitConfig
	script *redis.Script
	now    func() time.Time
}

// The bucket refills continuously at limit/window tokens per millisecond up
// to limit+burst. Returns {allowed, tokens left, retry after ms}.
const tokenBucketScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local refillRate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call("HMGET", key, "tokens", "timestamp")
local tokens = tonumber(data[1])
local timestamp = tonumber(data[2])

if tokens == nil then
    tokens = capacity
    timestamp = now
else
    if timestamp == nil then
        timestamp = now
    end
    local delta = now - timestamp
    if delta > 0 then
        tokens = math.min(capacity, tokens + (delta * refillRate))
        timestamp = now
    end
end

local allowed = 0
if tokens >= 1 then
    allowed = 1
    tokens = tokens - 1
end

redis.call("HMSET", key, "tokens", tokens, "timestamp", now)
redis.call("PEXPIRE", key, ttl)

local retryAfter = 0
if allowed == 0 then
    retryAfter = math.ceil((1 - tokens) / refillRate)
end

return {allowed, tostring(tokens), retryAfter}
`

// NewLimiter creates a limiter over client.
func NewLimiter(client redis.Cmdable, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		client: client,
		cfg:    cfg,
		script: redis.NewScript(tokenBucketScript),
		now:    time.Now,
	}
}

// RuleFor returns the effective rule for an endpoint key ("METHOD:/route")
// and identity type.
func (l *Limiter) RuleFor(endpoint string, identityType IdentityType) Rule {
	window := l.cfg.Window()
	limit, burst := l.cfg.AnonymousLimit, l.cfg.AnonymousBurst
	if identityType == IdentitySession {
		limit, burst = l.cfg.SessionLimit, l.cfg.SessionBurst
	}

	if override, ok := l.cfg.EndpointOverrides[endpoint]; ok {
		if override.WindowSeconds > 0 {
			window = time.Duration(override.WindowSeconds) * time.Second
		}
		overrideLimit, overrideBurst := override.AnonymousLimit, override.AnonymousBurst
		if identityType == IdentitySession {
			overrideLimit, overrideBurst = override.SessionLimit, override.SessionBurst
		}
		if overrideLimit > 0 {
			limit = overrideLimit
		}
		if overrideBurst >= 0 {
			burst = overrideBurst
		}
	}

	if limit <= 0 {
		return Rule{Limit: 0, Burst: burst, Window: window}
	}
	return Rule{Limit: limit, Burst: max(burst, 0), Window: window}
}

// Allow takes one token for identityKey on endpointKey. A disabled limiter or
// a rule without a limit always allows.
func (l *Limiter) Allow(ctx context.Context, endpointKey, identityKey string, rule Rule, identityType IdentityType) (Result, error) {
	result := Result{
		Allowed:      true,
		Remaining:    rule.Limit,
		Limit:        rule.Limit,
		Window:       rule.Window,
		IdentityKey:  identityKey,
		EndpointKey:  endpointKey,
		IdentityType: identityType,
	}
	if !l.cfg.Enabled || rule.Limit <= 0 {
		return result, nil
	}

	if rule.Window <= 0 {
		rule.Window = l.cfg.Window()
		result.Window = rule.Window
	}
	windowMillis := rule.Window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = time.Minute.Milliseconds()
	}

	refillRate := float64(rule.Limit) / float64(windowMillis)
	capacity := math.Max(float64(rule.Limit+rule.Burst), 1)

	key := fmt.Sprintf("%s:%s:%s:%s", l.cfg.RedisPrefix, identityType, endpointKey, identityKey)
	raw, err := l.script.Run(ctx, l.client, []string{key},
		l.now().UnixMilli(), formatFloat(refillRate), formatFloat(capacity), windowMillis*2,
	).Result()
	if err != nil {
		decisionsTotal.WithLabelValues(identityType.String(), "error").Inc()
		return Result{}, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		decisionsTotal.WithLabelValues(identityType.String(), "error").Inc()
		return Result{}, errors.New("unexpected rate limit script response")
	}

	allowed := toInt(values[0]) == 1
	tokens := toFloat(values[1])
	retryAfter := time.Duration(toInt(values[2])) * time.Millisecond

	result.Allowed = allowed
	result.Remaining = int(math.Max(0, math.Floor(tokens)))
	if allowed {
		resetMillis := math.Max(capacity-tokens, 0) / refillRate
		result.ResetAfter = time.Duration(math.Ceil(resetMillis)) * time.Millisecond
		decisionsTotal.WithLabelValues(identityType.String(), "allowed").Inc()
	} else {
		result.RetryAfter = retryAfter
		result.ResetAfter = retryAfter
		decisionsTotal.WithLabelValues(identityType.String(), "limited").Inc()
	}
	return result, nil
}

// WithNow overrides the time source.
func (l *Limiter) WithNow(now func() time.Time) {
	l.now = now
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 10, 64)
}

func toInt(value interface{}) int {
	switch v := value.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case string:
		i, _ := strconv.Atoi(v)
		return i
	case float64:
		return int(v)
	default:
		return 0
	}
}

func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
