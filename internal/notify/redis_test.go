package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/computing"
	"github.com/robocompute/go-robocompute/internal/models"
)

func TestDeliverSkipsOwnEvents(t *testing.T) {
	hub := computing.NewHub()
	r := &Redis{hub: hub, origin: "node-a"}
	sub := hub.Subscribe("task_1")
	defer sub.Close()

	evt := models.TaskEvent{Type: models.EventStatus, TaskId: "task_1", Status: models.TaskRunning, Timestamp: time.Now().UTC()}

	own, err := json.Marshal(envelope{Origin: "node-a", Event: evt})
	require.NoError(t, err)
	assert.False(t, r.deliver(own))
	assert.Len(t, sub.C, 0)

	remote, err := json.Marshal(envelope{Origin: "node-b", Event: evt})
	require.NoError(t, err)
	assert.True(t, r.deliver(remote))
	got := <-sub.C
	assert.Equal(t, models.TaskRunning, got.Status)

	assert.False(t, r.deliver([]byte("{")))
}

type recordingConn struct {
	mu       sync.Mutex
	block    chan struct{}
	commands [][]interface{}
}

func (c *recordingConn) Close() error { return nil }
func (c *recordingConn) Err() error   { return nil }
func (c *recordingConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, append([]interface{}{cmd}, args...))
	return int64(0), nil
}
func (c *recordingConn) Send(string, ...interface{}) error { return nil }
func (c *recordingConn) Flush() error                      { return nil }
func (c *recordingConn) Receive() (interface{}, error)     { return nil, nil }

func (c *recordingConn) published() [][]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]interface{}(nil), c.commands...)
}

func poolOf(conn redis.Conn) *redis.Pool {
	return &redis.Pool{Dial: func() (redis.Conn, error) { return conn, nil }}
}

func TestPublishDoesNotWaitOnRedis(t *testing.T) {
	conn := &recordingConn{block: make(chan struct{})}
	defer close(conn.block)
	hub := computing.NewHub()
	r := NewRedis(poolOf(conn), nil, hub)
	sub := hub.Subscribe("task_1")
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.drain(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < outboxSize+10; i++ {
			r.Publish(models.TaskEvent{Type: models.EventProgress, TaskId: "task_1", Progress: i % 100})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Publish blocked on a stalled redis connection")
	}
	assert.NotEmpty(t, sub.C)
}

func TestDrainPublishesQueuedEvents(t *testing.T) {
	conn := &recordingConn{}
	r := NewRedis(poolOf(conn), nil, computing.NewHub())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.drain(ctx)

	r.Publish(models.TaskEvent{Type: models.EventStatus, TaskId: "task_9", Status: models.TaskCompleted})
	require.Eventually(t, func() bool { return len(conn.published()) == 1 }, 2*time.Second, 10*time.Millisecond)

	cmd := conn.published()[0]
	assert.Equal(t, "PUBLISH", cmd[0])
	assert.Equal(t, constants.REDIS_EVENT_CHANNEL, cmd[1])
	var env envelope
	require.NoError(t, json.Unmarshal(cmd[2].([]byte), &env))
	assert.Equal(t, r.origin, env.Origin)
	assert.Equal(t, "task_9", env.Event.TaskId)
}
