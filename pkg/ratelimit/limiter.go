package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/richxcame/ride-dispatch/pkg/config"
)

// Identity is the subject a bucket belongs to.
type Identity struct {
	Key           string
	Authenticated bool
}

// Rule defines a token bucket: Limit tokens refill per Window, Burst extra
// tokens of headroom.
type Rule struct {
	Limit  int
	Burst  int
	Window time.Duration
}

// Decision captures the outcome of a rate limiting check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAfter time.Duration
}

// Limiter implements a Redis-backed token bucket rate limiter.
type Limiter struct {
	client redis.Scripter
	cfg    config.RateLimitConfig
	script *redis.Script
	now    func() time.Time
}

// KEYS[1] bucket; ARGV now(ms), refill per ms, capacity, ttl(ms).
// Returns {allowed, tokens left, ms until one token}.
const tokenBucketScript = `
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now

if now > ts then
    tokens = math.min(capacity, tokens + (now - ts) * rate)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
    allowed = 1
    tokens = tokens - 1
else
    wait = math.ceil((1 - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), wait}
`

// NewLimiter creates a new Limiter instance.
func NewLimiter(client redis.Scripter, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		client: client,
		cfg:    cfg,
		script: redis.NewScript(tokenBucketScript),
		now:    time.Now,
	}
}

// RuleFor resolves the rule for an endpoint ("METHOD:/route") and identity.
func (l *Limiter) RuleFor(endpoint string, authenticated bool) Rule {
	rule := Rule{Limit: l.cfg.AnonymousLimit, Burst: l.cfg.AnonymousBurst, Window: l.cfg.Window()}
	if authenticated {
		rule.Limit, rule.Burst = l.cfg.DefaultLimit, l.cfg.DefaultBurst
	}

	if override, ok := l.cfg.EndpointOverrides[endpoint]; ok {
		if override.WindowSeconds > 0 {
			rule.Window = time.Duration(override.WindowSeconds) * time.Second
		}
		limit, burst := override.AnonymousLimit, override.AnonymousBurst
		if authenticated {
			limit, burst = override.AuthenticatedLimit, override.AuthenticatedBurst
		}
		if limit > 0 {
			rule.Limit = limit
		}
		if burst > 0 {
			rule.Burst = burst
		}
	}

	if rule.Burst < 0 {
		rule.Burst = 0
	}
	if rule.Window <= 0 {
		rule.Window = time.Minute
	}
	return rule
}

// Allow takes one token from the identity's bucket for endpoint.
func (l *Limiter) Allow(ctx context.Context, endpoint string, identity Identity) (Decision, error) {
	rule := l.RuleFor(endpoint, identity.Authenticated)
	if !l.cfg.Enabled || rule.Limit <= 0 {
		return Decision{Allowed: true, Limit: rule.Limit, Remaining: rule.Limit}, nil
	}

	windowMillis := rule.Window.Milliseconds()
	rate := float64(rule.Limit) / float64(windowMillis)
	capacity := float64(rule.Limit + rule.Burst)
	key := fmt.Sprintf("%s:%s:%s", l.cfg.RedisPrefix, endpoint, identity.Key)

	raw, err := l.script.Run(ctx, l.client, []string{key},
		l.now().UnixMilli(),
		strconv.FormatFloat(rate, 'f', 10, 64),
		strconv.FormatFloat(capacity, 'f', 4, 64),
		windowMillis*2,
	).Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(raw) != 3 {
		return Decision{}, errors.New("unexpected token bucket response")
	}

	allowed, _ := raw[0].(int64)
	tokensText, _ := raw[1].(string)
	waitMillis, _ := raw[2].(int64)
	tokens, _ := strconv.ParseFloat(tokensText, 64)

	decision := Decision{
		Allowed:   allowed == 1,
		Limit:     rule.Limit,
		Remaining: int(math.Max(0, math.Floor(tokens))),
	}
	if decision.Allowed {
		decision.ResetAfter = time.Duration(math.Ceil((capacity-tokens)/rate)) * time.Millisecond
	} else {
		decision.RetryAfter = time.Duration(waitMillis) * time.Millisecond
		decision.ResetAfter = decision.RetryAfter
	}
	return decision, nil
}

// WithNow overrides the time source.
func (l *Limiter) WithNow(now func() time.Time) {
	l.now = now
}
