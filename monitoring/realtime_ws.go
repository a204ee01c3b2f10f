package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType 消息类型
type MessageType string

const (
	PredictionEvent MessageType = "prediction"
	StatsEvent      MessageType = "stats"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Outcome of one prediction call.
const (
	OutcomeOK       = "ok"
	OutcomeMismatch = "mismatch"
	OutcomeError    = "error"
)

// Message 监控消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// Prediction 预测事件. The input record is never included.
type Prediction struct {
	RequestID  string             `json:"request_id,omitempty"`
	Outcome    string             `json:"outcome"`
	Positives  map[string]bool    `json:"positives,omitempty"`
	Probas     map[string]float64 `json:"probas,omitempty"`
	DurationMs int64              `json:"duration_ms"`
}

// Client WebSocket客户端. A non-empty outcomes set limits which prediction
// events the client receives.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
	outcomes map[string]bool
}

func (c *Client) wants(outcome string) bool {
	return len(c.outcomes) == 0 || c.outcomes[outcome]
}

type broadcastMsg struct {
	outcome string
	payload []byte
}

// MonitorStats 监控统计
type MonitorStats struct {
	ConnectedClients int64            `json:"connected_clients"`
	MessagesSent     int64            `json:"messages_sent"`
	Predictions      map[string]int64 `json:"predictions"`
	StartTime        time.Time        `json:"start_time"`
	Uptime           string           `json:"uptime"`
}

// WebSocketHub WebSocket中心
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan broadcastMsg
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	done       chan struct{}

	sent      atomic.Int64
	outcomes  sync.Map // outcome -> *atomic.Int64
	startTime time.Time
}

// NewWebSocketHub 创建WebSocket中心. An empty allowedOrigins accepts any
// origin.
func NewWebSocketHub(allowedOrigins []string, logger *zap.Logger) *WebSocketHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:    logger,
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(allowed) == 0 || origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Run 启动WebSocket中心 until ctx is cancelled.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.logger.Info("websocket hub stopped")
	}()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", zap.String("client", client.clientID), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", zap.String("client", client.clientID), zap.Int("total", total))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(message.outcome) {
					continue
				}
				select {
				case client.send <- message.payload:
					h.sent.Add(1)
				default:
					h.logger.Warn("slow websocket client dropped", zap.String("client", client.clientID))
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			// 关闭所有连接
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// HandleWebSocket 处理WebSocket连接. The optional outcome query parameter
// is a comma-separated filter, e.g. ?outcome=error,mismatch. Each client
// first receives a stats snapshot.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		clientID: uuid.NewString(),
		outcomes: parseOutcomes(r.URL.Query().Get("outcome")),
	}
	if snapshot, err := h.encode(StatsEvent, h.GetStats()); err == nil {
		client.send <- snapshot
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump(h.logger)
	go client.readPump(h)
}

func parseOutcomes(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(strings.ToLower(o)); o != "" {
			set[o] = true
		}
	}
	return set
}

func (h *WebSocketHub) encode(t MessageType, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
		ID:        uuid.NewString(),
	})
}

// PublishPrediction counts the outcome and queues the event for every
// subscribed client. A full queue drops the event.
func (h *WebSocketHub) PublishPrediction(p Prediction) {
	counter, _ := h.outcomes.LoadOrStore(p.Outcome, &atomic.Int64{})
	counter.(*atomic.Int64).Add(1)

	msg, err := h.encode(PredictionEvent, p)
	if err != nil {
		h.logger.Error("encode prediction event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- broadcastMsg{outcome: p.Outcome, payload: msg}:
	default:
		h.logger.Warn("websocket broadcast queue is full, dropping event", zap.String("outcome", p.Outcome))
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetStats 获取统计
func (h *WebSocketHub) GetStats() MonitorStats {
	stats := MonitorStats{
		ConnectedClients: int64(h.ClientCount()),
		MessagesSent:     h.sent.Load(),
		Predictions:      make(map[string]int64),
		StartTime:        h.startTime,
		Uptime:           time.Since(h.startTime).Round(time.Second).String(),
	}
	h.outcomes.Range(func(k, v any) bool {
		stats.Predictions[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return stats
}

// writePump WebSocket写入泵
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump WebSocket读取泵. Clients only receive; incoming frames are
// drained so close and pong frames are processed. A client silent for
// pongWait is dropped.
func (c *Client) readPump(h *WebSocketHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}
