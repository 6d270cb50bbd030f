package client

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/wallet"
)

// StreamTask subscribes to a task's events and calls fn for each one, the
// snapshot first. It returns nil once the server closes the stream after a
// terminal status, or fn's error.
func (c *Client) StreamTask(ctx context.Context, taskId string, fn func(models.TaskEvent) error) error {
	path := "/tasks/" + taskId + "/stream"
	wsURL := c.baseURL + path
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set(constants.HeaderAuthorization, "Bearer "+c.apiKey)
	}
	if c.signer != nil {
		ts := c.now().Unix()
		sig, err := c.signer.WalletSign(ctx, c.address, []byte(wallet.SignatureMessage(http.MethodGet, path, ts)))
		if err != nil {
			return err
		}
		header.Set(constants.HeaderWalletSignature, sig)
		header.Set(constants.HeaderTimestamp, strconv.FormatInt(ts, 10))
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return models.ErrNetwork("stream rejected: "+resp.Status, resp.StatusCode)
		}
		return models.ErrNetwork(err.Error(), 0)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := conn.WriteJSON(models.StreamRequest{Action: "subscribe", TaskId: taskId}); err != nil {
		return models.ErrNetwork(err.Error(), 0)
	}
	for {
		var evt models.TaskEvent
		if err := conn.ReadJSON(&evt); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return models.ErrNetwork(err.Error(), 0)
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}
