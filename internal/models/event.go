package models

import "time"

type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
	EventLog      EventType = "log"
)

type TaskEvent struct {
	Type      EventType          `json:"type"`
	TaskId    string             `json:"task_id"`
	Status    TaskStatus         `json:"status"`
	Progress  int                `json:"progress"`
	Message   string             `json:"message,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func (e TaskEvent) IsTerminal() bool {
	return e.Status.IsTerminal()
}

type StreamRequest struct {
	Action string `json:"action"`
	TaskId string `json:"task_id"`
}
