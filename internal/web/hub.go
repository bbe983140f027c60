package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/sweeney/tec-monitor/internal/session"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendQueue  = 32
)

// SampleJSON is one websocket message.
type SampleJSON struct {
	Time         float64 `json:"t"`
	SetPoint     float64 `json:"sp"`
	Temperature1 float64 `json:"t1"`
	Temperature2 float64 `json:"t2"`
	Output       float64 `json:"out"`
}

// Hub is a session subscriber that streams samples to websocket clients.
// A client that cannot keep up loses samples rather than slowing the poll
// loop.
type Hub struct {
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	wg      sync.WaitGroup

	dropped atomic.Uint64
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates an empty hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		log:     log.Named("ws"),
		clients: map[*wsClient]struct{}{},
		upgrader: websocket.Upgrader{
			// The page is served by the same process; any origin that can
			// reach the port may watch.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// OnSample implements session.Subscriber.
func (h *Hub) OnSample(s session.Sample) {
	msg, err := json.Marshal(SampleJSON{
		Time:         float64(s.Timestamp.UnixMicro()) / 1e6,
		SetPoint:     s.SetPoint,
		Temperature1: s.Temperature1,
		Temperature2: s.Temperature2,
		Output:       s.Output,
	})
	if err != nil {
		h.log.Warnw("encode sample", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Inc()
		}
	}
}

// ServeHTTP upgrades the request and streams samples until the client
// goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("upgrade failed", "error", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendQueue)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()
	h.log.Debugw("client connected", "remote", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages; it exists to notice disconnects and
// answer pings.
func (h *Hub) readPump(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	defer h.wg.Done()
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debugw("write failed", "error", err)
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// remove unregisters c and stops its writer.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.once.Do(func() { close(c.send) })
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns the number of messages skipped for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every client and waits for their writers to exit.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
	h.wg.Wait()
	return nil
}
