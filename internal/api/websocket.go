package api

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mescon/Tickarr/internal/domain"
	"github.com/mescon/Tickarr/internal/eventbus"
	"github.com/mescon/Tickarr/internal/logger"
)

const (
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = (wsPongWait * 9) / 10
	wsWriteWait    = 5 * time.Second
	wsBroadcastBuf = 256
)

// Message types pushed to display clients.
const (
	MessageRender   = "render"
	MessageEvent    = "event"
	MessageLog      = "log"
	MessageSnapshot = "snapshot"
)

// wsMessage is the envelope of every frame sent to clients.
type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// RenderMessage is the payload of a render frame.
type RenderMessage struct {
	ElementID string `json:"element_id"`
	Text      string `json:"text"`
}

// newOriginChecker validates the Origin of upgrade requests against the
// configured CORS origins. Without configuration only same-origin requests pass.
func newOriginChecker(origins string) func(r *http.Request) bool {
	allowed := make(map[string]bool)
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}

	return func(r *http.Request) bool {
		if allowed["*"] {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if allowed[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

type wsClient struct {
	conn *websocket.Conn
	logs bool
}

// WebSocketHub fans renders, widget events and log entries out to connected
// display clients. Broadcasting never blocks: when the queue is full the
// message is dropped.
type WebSocketHub struct {
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan wsMessage
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.Mutex

	snapshotMu sync.RWMutex
	snapshot   func() interface{}

	logCh    chan logger.LogEntry
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWebSocketHub subscribes to the widget and element events on eb and starts the hub.
func NewWebSocketHub(eb eventbus.Publisher, checkOrigin func(r *http.Request) bool) *WebSocketHub {
	h := &WebSocketHub{
		upgrader:   websocket.Upgrader{CheckOrigin: checkOrigin},
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan wsMessage, wsBroadcastBuf),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	if eb != nil {
		types := append([]domain.EventType{domain.ElementAdded, domain.ElementRemoved}, domain.WidgetEventTypes...)
		for _, t := range types {
			eb.Subscribe(t, func(e domain.Event) {
				h.send(wsMessage{Type: MessageEvent, Data: e})
			})
		}
	}

	h.logCh = logger.Subscribe()
	go func() {
		for entry := range h.logCh {
			h.send(wsMessage{Type: MessageLog, Data: entry})
		}
	}()

	go h.run()
	return h
}

// SetSnapshot sets the function whose result is sent to every new client.
func (h *WebSocketHub) SetSnapshot(fn func() interface{}) {
	h.snapshotMu.Lock()
	h.snapshot = fn
	h.snapshotMu.Unlock()
}

// BroadcastRender pushes a rendered text to every client. It has the
// signature of display.RenderFunc.
func (h *WebSocketHub) BroadcastRender(elementID, text string) {
	h.send(wsMessage{Type: MessageRender, Data: RenderMessage{ElementID: elementID, Text: text}})
}

func (h *WebSocketHub) send(msg wsMessage) {
	select {
	case <-h.stop:
	case h.broadcast <- msg:
	default:
		// Full queue. Not logged: log entries are broadcast too.
	}
}

func (h *WebSocketHub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			logger.Debugf("WebSocket client connected (Total: %d)", len(h.clients))
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				if err := conn.Close(); err != nil {
					logger.Debugf("WebSocket close error: %v", err)
				}
				logger.Debugf("WebSocket client disconnected")
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn, client := range h.clients {
				if msg.Type == MessageLog && !client.logs {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(msg); err != nil {
					// Not Errorf: the entry would be broadcast back into this loop
					logger.Debugf("WebSocket write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// HandleConnection upgrades the request and serves the client until it
// disconnects. withLogs enables the log stream for this client.
func (h *WebSocketHub) HandleConnection(c *gin.Context, withLogs bool) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	// The snapshot goes out before registration so it always precedes broadcasts.
	h.snapshotMu.RLock()
	snapshot := h.snapshot
	h.snapshotMu.RUnlock()
	if snapshot != nil {
		ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := ws.WriteJSON(wsMessage{Type: MessageSnapshot, Data: snapshot()}); err != nil {
			logger.Debugf("Failed to send snapshot: %v", err)
			ws.Close()
			return
		}
	}

	select {
	case h.register <- &wsClient{conn: ws, logs: withLogs}:
	case <-h.stop:
		ws.Close()
		return
	}
	defer func() {
		select {
		case h.unregister <- ws:
		case <-h.stop:
		}
	}()

	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	closed := make(chan struct{})
	defer close(closed)
	go h.ping(ws, closed)

	// Clients only send control frames; reading keeps the pong handler running.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) ping(ws *websocket.Conn, closed <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-h.stop:
			return
		case <-ticker.C:
			h.mu.Lock()
			if _, ok := h.clients[ws]; !ok {
				h.mu.Unlock()
				return
			}
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			h.mu.Unlock()
			if err != nil {
				logger.Debugf("WebSocket ping error: %v", err)
				return
			}
		}
	}
}

// ClientCount returns the number of connected WebSocket clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown disconnects every client and stops the hub. Safe to call more than once.
func (h *WebSocketHub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.stop)
		logger.Unsubscribe(h.logCh)
	})
	<-h.done
}

func (s *RESTServer) handleWebSocket(c *gin.Context) {
	s.hub.HandleConnection(c, s.authenticated(c))
}
