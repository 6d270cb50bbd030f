package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"

	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/computing"
	"github.com/robocompute/go-robocompute/internal/models"
)

type envelope struct {
	Origin string           `json:"origin"`
	Event  models.TaskEvent `json:"event"`
}

// Redis delivers events to local subscribers and republishes them on a redis
// channel so streams served by other instances see them too.
// Outgoing events are queued and published by Run; when the queue is full
// they are dropped, like a slow hub subscriber.
type Redis struct {
	hub    *computing.Hub
	pool   *redis.Pool
	dial   func() (redis.Conn, error)
	origin string
	outbox chan []byte
}

const outboxSize = 1024

// NewRedis publishes through pool. dial opens the long lived subscriber
// connection, which must not carry a read timeout.
func NewRedis(pool *redis.Pool, dial func() (redis.Conn, error), hub *computing.Hub) *Redis {
	return &Redis{hub: hub, pool: pool, dial: dial, origin: uuid.NewString(), outbox: make(chan []byte, outboxSize)}
}

func (r *Redis) Hub() *computing.Hub {
	return r.hub
}

func (r *Redis) Publish(evt models.TaskEvent) {
	r.hub.Publish(evt)

	payload, err := json.Marshal(envelope{Origin: r.origin, Event: evt})
	if err != nil {
		logs.GetLogger().Errorf("encoding task event %s: %v", evt.TaskId, err)
		return
	}
	select {
	case r.outbox <- payload:
	default:
		logs.GetLogger().Warnf("event outbox full, dropping task event %s", evt.TaskId)
	}
}

// drain publishes queued events until ctx is done.
func (r *Redis) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-r.outbox:
			conn := r.pool.Get()
			if _, err := conn.Do("PUBLISH", constants.REDIS_EVENT_CHANNEL, payload); err != nil {
				logs.GetLogger().Errorf("publishing task event: %v", err)
			}
			conn.Close()
		}
	}
}

// deliver hands a remote event to local subscribers. Events this instance
// published itself were already delivered.
func (r *Redis) deliver(data []byte) bool {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logs.GetLogger().Errorf("decoding task event: %v", err)
		return false
	}
	if env.Origin == r.origin {
		return false
	}
	r.hub.Publish(env.Event)
	return true
}

// Run publishes queued events and listens on the event channel until ctx is
// done, reconnecting on errors.
func (r *Redis) Run(ctx context.Context) {
	go r.drain(ctx)
	for ctx.Err() == nil {
		if err := r.listen(ctx); err != nil && ctx.Err() == nil {
			logs.GetLogger().Errorf("task event subscription lost: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
			}
		}
	}
}

func (r *Redis) listen(ctx context.Context) error {
	conn, err := r.dial()
	if err != nil {
		return err
	}
	psc := redis.PubSubConn{Conn: conn}
	defer psc.Close()
	if err := psc.Subscribe(constants.REDIS_EVENT_CHANNEL); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			psc.Unsubscribe()
		case <-done:
		}
	}()

	for {
		switch v := psc.Receive().(type) {
		case redis.Message:
			r.deliver(v.Data)
		case redis.Subscription:
			if v.Count == 0 {
				return nil
			}
		case error:
			return v
		}
	}
}
