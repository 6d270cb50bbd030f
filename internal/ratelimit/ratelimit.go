package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"golang.org/x/time/rate"

	"github.com/robocompute/go-robocompute/constants"
)

// Decision is the outcome of one request against a key's quota.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
	now       time.Time
}

// RetryAfter is the number of whole seconds until the quota refills.
func (d Decision) RetryAfter() int {
	secs := int(math.Ceil(d.Reset.Sub(d.now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

type Limiter interface {
	Take(ctx context.Context, key string) (Decision, error)
}

// Memory keeps a token bucket per key in process.
type Memory struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	Now      func() time.Time
}

func NewMemory(requests int, window time.Duration) *Memory {
	return &Memory{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(requests) / window.Seconds()),
		burst:    requests,
		Now:      time.Now,
	}
}

func (m *Memory) get(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[key]
	if !ok {
		l = rate.NewLimiter(m.limit, m.burst)
		m.limiters[key] = l
	}
	return l
}

func (m *Memory) Take(_ context.Context, key string) (Decision, error) {
	now := m.Now()
	l := m.get(key)
	allowed := l.AllowN(now, 1)
	tokens := l.TokensAt(now)

	d := Decision{Allowed: allowed, Limit: m.burst, now: now}
	if tokens > 0 {
		d.Remaining = int(tokens)
	}
	missing := float64(m.burst) - tokens
	if !allowed {
		missing = 1 - tokens
	}
	d.Reset = now.Add(time.Duration(missing / float64(m.limit) * float64(time.Second)))
	return d, nil
}

// Redis counts requests in fixed windows shared by every API instance.
type Redis struct {
	pool   *redis.Pool
	limit  int
	window time.Duration
	Now    func() time.Time
}

func NewRedis(pool *redis.Pool, requests int, window time.Duration) *Redis {
	return &Redis{pool: pool, limit: requests, window: window, Now: time.Now}
}

func (r *Redis) Take(_ context.Context, key string) (Decision, error) {
	now := r.Now()
	secs := int64(r.window.Seconds())
	if secs < 1 {
		secs = 1
	}
	idx := now.Unix() / secs
	windowKey := fmt.Sprintf("%s%s:%d", constants.REDIS_RATELIMIT_PREFIX, key, idx)

	conn := r.pool.Get()
	defer conn.Close()
	if err := conn.Err(); err != nil {
		return Decision{}, err
	}

	count, err := redis.Int(conn.Do("INCR", windowKey))
	if err != nil {
		return Decision{}, err
	}
	if count == 1 {
		if _, err := conn.Do("EXPIRE", windowKey, secs*2); err != nil {
			return Decision{}, err
		}
	}

	d := Decision{
		Allowed: count <= r.limit,
		Limit:   r.limit,
		Reset:   time.Unix((idx+1)*secs, 0),
		now:     now,
	}
	if count < r.limit {
		d.Remaining = r.limit - count
	}
	return d, nil
}
