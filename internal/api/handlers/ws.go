package handlers

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"sentinel-worker-go/internal/models"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin:     func(r *http.Request) bool { return true },
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}

	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
)

// StatusLister yields the current status of every camera
type StatusLister interface {
	List() []models.CameraStatus
}

// StatusMessage is pushed to dashboard clients on every tick
type StatusMessage struct {
	Type      string                `json:"type"`
	Cameras   []models.CameraStatus `json:"cameras"`
	Alerts    models.AlertStats     `json:"alerts"`
	Timestamp int64                 `json:"timestamp"`
}

// StatusFeed pushes camera statuses to websocket clients at a fixed interval
type StatusFeed struct {
	cameras  StatusLister
	alerts   AlertStatsProvider
	interval time.Duration
	clients  atomic.Int64
}

func NewStatusFeed(cameras StatusLister, alerts AlertStatsProvider, interval time.Duration) *StatusFeed {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &StatusFeed{cameras: cameras, alerts: alerts, interval: interval}
}

// Clients is the number of connected websocket clients
func (f *StatusFeed) Clients() int64 {
	return f.clients.Load()
}

func (f *StatusFeed) snapshot() StatusMessage {
	msg := StatusMessage{
		Type:      "status",
		Cameras:   f.cameras.List(),
		Timestamp: time.Now().Unix(),
	}
	if f.alerts != nil {
		msg.Alerts = f.alerts.Stats()
	}
	return msg
}

// @Summary Live status feed
// @Description Websocket pushing camera statuses and alert stats periodically
// @Tags status
// @Router /ws/status [get]
func (f *StatusFeed) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	f.clients.Add(1)
	defer f.clients.Add(-1)

	// the reader only drains control frames and notices the client leaving
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	send := func() bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(f.snapshot()) == nil
	}
	if !send() {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
