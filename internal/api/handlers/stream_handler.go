package handlers

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/supportiq/backend/internal/pipeline"
	"github.com/supportiq/backend/pkg/logger"
)

// StreamHandler broadcasts pipeline progress events to every connected
// websocket client. It implements pipeline.EventSink; Publish never blocks a
// run — slow clients drop events.
type StreamHandler struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan pipeline.Event
}

func NewStreamHandler() *StreamHandler {
	return &StreamHandler{
		clients: make(map[*websocket.Conn]chan pipeline.Event),
	}
}

func (h *StreamHandler) Publish(event pipeline.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *StreamHandler) HandleConnection(c *websocket.Conn) {
	events := make(chan pipeline.Event, 64)

	h.mu.Lock()
	h.clients[c] = events
	h.mu.Unlock()

	logger.Info("Stream client connected", zap.String("remote", c.RemoteAddr().String()))

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.Close()
		logger.Info("Stream client disconnected")
	}()

	done := make(chan struct{})

	// Drain reads so close frames are processed.
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case event := <-events:
			if err := c.WriteJSON(event); err != nil {
				logger.Debug("Stream write failed", zap.Error(err))
				return
			}
		}
	}
}
