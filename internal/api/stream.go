package api

import (
	"net/http"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/util"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func snapshotOf(t *models.Task, at time.Time) models.TaskEvent {
	return models.TaskEvent{
		Type:      models.EventSnapshot,
		TaskId:    t.Id,
		Status:    t.Status,
		Progress:  t.Progress,
		Message:   t.ErrorMessage,
		Timestamp: at,
	}
}

// closesStream reports whether evt ends the stream. Log lines never do.
func closesStream(evt models.TaskEvent) bool {
	return evt.Type != models.EventLog && evt.IsTerminal()
}

// streamTask serves task events over a websocket. The client subscribes with
// {"action":"subscribe","task_id":...}; the server answers with a snapshot,
// forwards events and closes once the task reaches a terminal status.
func (s *Server) streamTask(c *gin.Context) {
	acct := accountOf(c)
	taskId := c.Param("id")
	if _, err := s.market.GetTask(acct.Id, taskId); err != nil {
		util.AbortWithError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.GetLogger().Errorf("websocket upgrade failed, task: %s, error: %v", taskId, err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	var req models.StreamRequest
	if err := conn.ReadJSON(&req); err != nil {
		return
	}
	if req.Action != "subscribe" || (req.TaskId != "" && req.TaskId != taskId) {
		closeWith(conn, websocket.ClosePolicyViolation, "expected subscribe for "+taskId)
		return
	}

	// subscribe before reading the snapshot so no transition is missed
	sub := s.hub.Subscribe(taskId)
	defer sub.Close()

	t, err := s.market.GetTask(acct.Id, taskId)
	if err != nil {
		closeWith(conn, websocket.CloseInternalServerErr, err.Error())
		return
	}
	snap := snapshotOf(t, s.now())
	if err := writeEvent(conn, snap); err != nil {
		return
	}
	if t.Status.IsTerminal() {
		closeWith(conn, websocket.CloseNormalClosure, string(t.Status))
		return
	}

	done := make(chan struct{})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeEvent(conn, evt); err != nil {
				return
			}
			if closesStream(evt) {
				closeWith(conn, websocket.CloseNormalClosure, string(evt.Status))
				return
			}
		case <-ticker.C:
			// a terminal event dropped on a full buffer still ends the stream
			if t, err := s.market.GetTask(acct.Id, taskId); err == nil && t.Status.IsTerminal() {
				writeEvent(conn, snapshotOf(t, s.now()))
				closeWith(conn, websocket.CloseNormalClosure, string(t.Status))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, evt models.TaskEvent) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(evt)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
