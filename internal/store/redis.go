package store

import (
	"time"

	"github.com/gomodule/redigo/redis"
)

const redisIOTimeout = 5 * time.Second

// DialRedis opens a single connection. A zero readTimeout blocks reads
// forever, which subscribers need.
func DialRedis(url, password string, readTimeout time.Duration) (redis.Conn, error) {
	opts := []redis.DialOption{
		redis.DialConnectTimeout(redisIOTimeout),
		redis.DialWriteTimeout(redisIOTimeout),
	}
	if readTimeout > 0 {
		opts = append(opts, redis.DialReadTimeout(readTimeout))
	}
	if password != "" {
		opts = append(opts, redis.DialPassword(password))
	}
	return redis.DialURL(url, opts...)
}

// NewRedisPool returns the pool shared by the rate limiter, event fan-out and
// the celery broker.
func NewRedisPool(url string, password string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     5,
		MaxActive:   0,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return DialRedis(url, password, redisIOTimeout)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}
