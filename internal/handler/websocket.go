package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/flybeeper/taskengine/internal/metrics"
	"github.com/flybeeper/taskengine/internal/repository"
	"github.com/flybeeper/taskengine/pkg/utils"
)

const (
	writeWait         = 10 * time.Second
	controlBuffer     = 4
	maxClientMessage  = 4096
	messageSnapshot   = "snapshot"
	messagePong       = "pong"
	messageError      = "error"
	clientTypePing    = "ping"
	clientTypeRequest = "snapshot"
)

// Envelope сообщение потока состояния
type Envelope struct {
	Type     string               `json:"type"`
	Sequence uint64               `json:"sequence"`
	Time     int64                `json:"time"`
	Snapshot *repository.Snapshot `json:"snapshot,omitempty"`
	Message  string               `json:"message,omitempty"`
}

// WebSocketHandler рассылает снимки вычислителя подключенным клиентам
type WebSocketHandler struct {
	upgrader     websocket.Upgrader
	engine       TaskEngine
	logger       *utils.Logger
	pingInterval time.Duration
	pongTimeout  time.Duration
	sequence     atomic.Uint64

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// Client WebSocket соединение с подпиской на снимки
type Client struct {
	conn        *websocket.Conn
	handler     *WebSocketHandler
	snapshots   <-chan *repository.Snapshot
	unsubscribe func()
	control     chan Envelope
	done        chan struct{}
	closeOnce   sync.Once
}

// NewWebSocketHandler создает WebSocket handler
func NewWebSocketHandler(engine TaskEngine, logger *utils.Logger, pingInterval, pongTimeout time.Duration) *WebSocketHandler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if pongTimeout <= pingInterval {
		pongTimeout = 2 * pingInterval
	}
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		engine:       engine,
		logger:       logger.WithField("component", "websocket"),
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		clients:      make(map[*Client]struct{}),
	}
}

// HandleWebSocket GET /api/v1/ws
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to upgrade to WebSocket")
		metrics.WebSocketErrors.Inc()
		return
	}

	snapshots, unsubscribe := h.engine.Subscribe()
	client := &Client{
		conn:        conn,
		handler:     h,
		snapshots:   snapshots,
		unsubscribe: unsubscribe,
		control:     make(chan Envelope, controlBuffer),
		done:        make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	metrics.WebSocketConnections.Inc()

	h.logger.WithField("client_ip", c.ClientIP()).Info("WebSocket client connected")

	// первый кадр - текущее состояние
	snap, _ := h.engine.Snapshot()
	client.enqueue(h.envelope(messageSnapshot, snap))

	go client.writePump()
	go client.readPump()
}

// Clients число подключенных клиентов
func (h *WebSocketHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll закрывает все соединения
func (h *WebSocketHandler) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *WebSocketHandler) envelope(kind string, snap *repository.Snapshot) Envelope {
	return Envelope{
		Type:     kind,
		Sequence: h.sequence.Add(1),
		Time:     time.Now().Unix(),
		Snapshot: snap,
	}
}

func (c *Client) enqueue(e Envelope) {
	select {
	case c.control <- e:
	default:
		metrics.WebSocketErrors.Inc()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.unsubscribe()
		c.conn.Close()

		c.handler.mu.Lock()
		delete(c.handler.clients, c)
		c.handler.mu.Unlock()
		metrics.WebSocketConnections.Dec()
		c.handler.logger.Debug("WebSocket client disconnected")
	})
}

// readPump обрабатывает входящие сообщения от клиента
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxClientMessage)
	c.conn.SetReadDeadline(time.Now().Add(c.handler.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.handler.pongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.handler.logger.WithField("error", err).Warn("WebSocket read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var req struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &req); err != nil {
		c.enqueue(Envelope{Type: messageError, Message: "invalid message"})
		return
	}

	switch req.Type {
	case clientTypePing:
		c.enqueue(c.handler.envelope(messagePong, nil))
	case clientTypeRequest:
		snap, _ := c.handler.engine.Snapshot()
		c.enqueue(c.handler.envelope(messageSnapshot, snap))
	default:
		c.enqueue(Envelope{Type: messageError, Message: "unknown message type: " + req.Type})
	}
}

// writePump единственный писатель в соединение
func (c *Client) writePump() {
	ticker := time.NewTicker(c.handler.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case snap, ok := <-c.snapshots:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
				return
			}
			if !c.write(c.handler.envelope(messageSnapshot, snap)) {
				return
			}

		case e := <-c.control:
			if !c.write(e) {
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				metrics.WebSocketErrors.Inc()
				return
			}
			metrics.WebSocketMessagesOut.WithLabelValues("ping").Inc()

		case <-c.done:
			return
		}
	}
}

func (c *Client) write(e Envelope) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(e); err != nil {
		c.handler.logger.WithField("error", err).Debug("WebSocket write error")
		metrics.WebSocketErrors.Inc()
		return false
	}
	metrics.WebSocketMessagesOut.WithLabelValues(e.Type).Inc()
	return true
}
