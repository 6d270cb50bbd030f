package computing

import (
	"sync"

	"github.com/robocompute/go-robocompute/internal/metrics"
	"github.com/robocompute/go-robocompute/internal/models"
)

const subscriberBuffer = 64

// Hub fans task events out to subscribers of that task. A subscriber that
// falls behind loses events instead of blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

type Subscription struct {
	TaskId string
	C      chan models.TaskEvent
	hub    *Hub
	once   sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[*Subscription]struct{}{}}
}

func (h *Hub) Subscribe(taskId string) *Subscription {
	sub := &Subscription{TaskId: taskId, C: make(chan models.TaskEvent, subscriberBuffer), hub: h}
	h.mu.Lock()
	if h.subs[taskId] == nil {
		h.subs[taskId] = map[*Subscription]struct{}{}
	}
	h.subs[taskId][sub] = struct{}{}
	h.mu.Unlock()
	metrics.StreamSubscribers.Inc()
	return sub
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		delete(h.subs[s.TaskId], s)
		if len(h.subs[s.TaskId]) == 0 {
			delete(h.subs, s.TaskId)
		}
		close(s.C)
		h.mu.Unlock()
		metrics.StreamSubscribers.Dec()
	})
}

func (h *Hub) Publish(evt models.TaskEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[evt.TaskId] {
		select {
		case sub.C <- evt:
		default:
		}
	}
}

func (h *Hub) Subscribers(taskId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[taskId])
}
