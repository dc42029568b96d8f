// internal/api/websocket.go
package api

import (
	"net/http"
	"time"

	"github.com/Corphon/PodcastDigest/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// progressMessage 推送给客户端的消息
type progressMessage struct {
	Type      string                  `json:"type"`
	Data      services.ProgressUpdate `json:"data"`
	Timestamp string                  `json:"timestamp"`
}

// ProgressWebSocket 以 WebSocket 推送任务进度，任务结束后关闭连接
func (h *Handler) ProgressWebSocket(c *gin.Context) {
	taskID := c.Param("taskID")

	tracker, exists := h.Progress.GetTracker(taskID)
	if !exists {
		h.Response.NotFound(c, "任务")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("WebSocket upgrade failed", map[string]interface{}{
			"task_id": taskID,
			"error":   err.Error(),
		})
		return
	}
	defer conn.Close()

	updates := tracker.Subscribe()
	defer tracker.Unsubscribe(updates)

	// 读循环只处理 pong 与关闭帧
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-readerDone:
			return

		case <-h.jobCtx.Done():
			h.writeClose(conn, websocket.CloseGoingAway, "server shutting down")
			return

		case update, ok := <-updates:
			if !ok {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(progressMessage{
				Type:      "progress",
				Data:      update,
				Timestamp: time.Now().Format(time.RFC3339),
			}); err != nil {
				h.Logger.Debug("WebSocket write failed", map[string]interface{}{
					"task_id": taskID,
					"error":   err.Error(),
				})
				return
			}

			if update.Status == services.StatusCompleted || update.Status == services.StatusFailed {
				h.writeClose(conn, websocket.CloseNormalClosure, update.Status)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeClose(conn *websocket.Conn, code int, text string) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(wsWriteWait))
}
