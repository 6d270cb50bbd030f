package computing

import (
	"testing"

	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestHubDeliversPerTask(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("task_a")
	b := h.Subscribe("task_b")
	defer b.Close()

	h.Publish(models.TaskEvent{TaskId: "task_a", Status: models.TaskRunning})
	assert.Len(t, a.C, 1)
	assert.Len(t, b.C, 0)
	assert.Equal(t, 1, h.Subscribers("task_a"))

	a.Close()
	a.Close()
	assert.Equal(t, 0, h.Subscribers("task_a"))
	h.Publish(models.TaskEvent{TaskId: "task_a"})
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("task_a")
	defer sub.Close()

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(models.TaskEvent{TaskId: "task_a", Progress: i})
	}
	assert.Len(t, sub.C, subscriberBuffer)
	first := <-sub.C
	assert.Equal(t, 0, first.Progress)
}
