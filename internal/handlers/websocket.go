package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/interfaces"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every message pushed to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// LogEntry is a log line shaped for the UI log panel
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ImportProgressUpdate carries incremental crawl progress for one job
type ImportProgressUpdate struct {
	JobID   string `json:"job_id"`
	Phase   string `json:"phase"`
	URL     string `json:"url,omitempty"`
	Crawled int    `json:"crawled"`
	Queued  int    `json:"queued"`
}

// ImportStatusUpdate carries a job status transition
type ImportStatusUpdate struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

// WebSocketHandler pushes import progress, status transitions and log
// lines to connected UI clients. High-frequency progress events are
// throttled per the websocket configuration.
type WebSocketHandler struct {
	logger            arbor.ILogger
	clients           map[*websocket.Conn]bool
	clientMutex       map[*websocket.Conn]*sync.Mutex
	mu                sync.RWMutex
	eventService      interfaces.EventService
	progressThrottler *rate.Limiter
	allowedEvents     map[string]bool
	serverInstanceID  string // Clients use this to detect server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		allowedEvents:    make(map[string]bool),
		serverInstanceID: uuid.New().String(),
	}

	// Empty whitelist allows all event types
	if config != nil {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
	}

	if config != nil {
		if intervalStr, ok := config.ThrottleIntervals["import_progress"]; ok {
			if interval, err := time.ParseDuration(intervalStr); err == nil {
				h.progressThrottler = rate.NewLimiter(rate.Every(interval), 1)
			} else {
				logger.Warn().
					Err(err).
					Str("interval", intervalStr).
					Msg("Failed to parse import_progress throttle interval - throttling disabled")
			}
		}
	}

	if eventService != nil {
		h.subscribeToImportEvents()
	}

	return h
}

// HandleWebSocket upgrades the connection and keeps it registered until
// the client disconnects
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendHello(conn)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read loop keeps the connection alive; clients never send payloads
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// sendHello sends the server instance id so a reconnecting client can
// detect a restart and clear stale state
func (h *WebSocketHandler) sendHello(conn *websocket.Conn) {
	msg := WSMessage{
		Type: "hello",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal hello message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send hello")
		}
		mutex.Unlock()
	}
}

// broadcast sends a message to every connected client
func (h *WebSocketHandler) broadcast(msgType string, payload interface{}) {
	msg := WSMessage{Type: msgType, Payload: payload}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msgType).Msg("Failed to send message to client")
		}
	}
}

// BroadcastLog sends a log line to all connected clients
func (h *WebSocketHandler) BroadcastLog(entry LogEntry) {
	h.broadcast("log", entry)
}

// BroadcastImportProgress sends crawl progress to all connected clients
func (h *WebSocketHandler) BroadcastImportProgress(update ImportProgressUpdate) {
	h.broadcast("import_progress", update)
}

// BroadcastImportStatus sends a job status transition to all clients
func (h *WebSocketHandler) BroadcastImportStatus(update ImportStatusUpdate) {
	h.broadcast("import_status", update)
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// allowed checks the event whitelist; an empty whitelist allows all
func (h *WebSocketHandler) allowed(eventType string) bool {
	return len(h.allowedEvents) == 0 || h.allowedEvents[eventType]
}

// subscribeToImportEvents bridges the event bus onto the socket
func (h *WebSocketHandler) subscribeToImportEvents() {
	h.eventService.Subscribe(interfaces.EventImportProgress, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid import progress event payload type")
			return nil
		}

		if !h.allowed("import_progress") {
			return nil
		}

		// Progress events fire once per crawled page; throttle so a
		// fast crawl cannot flood the socket
		if h.progressThrottler != nil && !h.progressThrottler.Allow() {
			return nil
		}

		h.BroadcastImportProgress(ImportProgressUpdate{
			JobID:   getString(payload, "job_id"),
			Phase:   getString(payload, "phase"),
			URL:     getString(payload, "url"),
			Crawled: getInt(payload, "crawled"),
			Queued:  getInt(payload, "queued"),
		})
		return nil
	})

	// Status transitions are rare and terminal states matter; never
	// throttled
	h.eventService.Subscribe(interfaces.EventImportStatus, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid import status event payload type")
			return nil
		}

		if !h.allowed("import_status") {
			return nil
		}

		h.BroadcastImportStatus(ImportStatusUpdate{
			JobID:   getString(payload, "job_id"),
			Status:  getString(payload, "status"),
			Phase:   getString(payload, "phase"),
			Message: getString(payload, "message"),
		})
		return nil
	})

	h.eventService.Subscribe(interfaces.EventLog, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			return nil
		}

		if !h.allowed("log") {
			return nil
		}

		h.BroadcastLog(LogEntry{
			Timestamp: getString(payload, "timestamp"),
			Level:     getString(payload, "level"),
			Message:   getString(payload, "message"),
		})
		return nil
	})
}

// Helper functions for safe type conversion from map[string]interface{}
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if val, ok := m[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
