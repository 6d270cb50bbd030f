package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(3, time.Minute)
	m.Now = func() time.Time { return now }
	ctx := context.Background()

	for i := 2; i >= 0; i-- {
		d, err := m.Take(ctx, "key-a")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, i, d.Remaining)
	}

	d, err := m.Take(ctx, "key-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 20, d.RetryAfter())

	other, err := m.Take(ctx, "key-b")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(20 * time.Second)
	d, err = m.Take(ctx, "key-a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

// fakeConn answers the INCR/EXPIRE subset of redis the limiter uses.
type fakeConn struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]int64
}

func (c *fakeConn) Close() error { return nil }
func (c *fakeConn) Err() error   { return nil }

func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch cmd {
	case "":
		return nil, nil
	case "INCR":
		k := args[0].(string)
		c.counts[k]++
		return c.counts[k], nil
	case "EXPIRE":
		c.expires[args[0].(string)] = args[1].(int64)
		return int64(1), nil
	}
	return nil, fmt.Errorf("unexpected command %s", cmd)
}

func (c *fakeConn) Send(string, ...interface{}) error { return nil }
func (c *fakeConn) Flush() error                       { return nil }
func (c *fakeConn) Receive() (interface{}, error)      { return nil, nil }

func TestRedisLimiterFixedWindow(t *testing.T) {
	conn := &fakeConn{counts: map[string]int64{}, expires: map[string]int64{}}
	pool := &redis.Pool{Dial: func() (redis.Conn, error) { return conn, nil }}
	now := time.Unix(1709294400, 0)
	r := NewRedis(pool, 2, time.Minute)
	r.Now = func() time.Time { return now }
	ctx := context.Background()

	d, err := r.Take(ctx, "acct_1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, time.Unix(1709294460, 0), d.Reset)

	d, err = r.Take(ctx, "acct_1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = r.Take(ctx, "acct_1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 60, d.RetryAfter())

	assert.Len(t, conn.expires, 1)
	for _, ttl := range conn.expires {
		assert.Equal(t, int64(120), ttl)
	}

	now = now.Add(time.Minute)
	d, err = r.Take(ctx, "acct_1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
