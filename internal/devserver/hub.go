package devserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Server-pushed events.
const (
	EventNewNotification      = "new_notification"
	EventNotificationsRead    = "notifications-read"
	EventNotificationsAllRead = "notifications-all-read"
)

// envelope is the wire format of a pushed event.
type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type peer struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc
}

// Hub keeps the realtime connections of every user.
type Hub struct {
	log     *zap.Logger
	metrics *Metrics

	mu    sync.RWMutex
	peers map[string]map[*peer]struct{}
}

func NewHub(log *zap.Logger, m *Metrics) *Hub {
	return &Hub{log: log, metrics: m, peers: make(map[string]map[*peer]struct{})}
}

// Serve upgrades the request and pumps events to it until either side
// closes. The caller has already authenticated userID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	// CloseRead answers pings and reports the peer going away.
	ctx, cancel := context.WithCancel(conn.CloseRead(context.Background()))
	p := &peer{userID: userID, conn: conn, send: make(chan []byte, sendBufferSize), cancel: cancel}
	h.register(p)
	defer h.unregister(p)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case data, ok := <-p.send:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "session revoked")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeWait)
			err := conn.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				h.log.Debug("WebSocket write failed", zap.String("user_id", userID), zap.Error(err))
				return
			}
		}
	}
}

// Send pushes an event to every connection of userID and returns how many
// connections it was queued on.
func (h *Hub) Send(userID, event string, payload interface{}) int {
	data, err := json.Marshal(envelope{Type: event, Payload: payload})
	if err != nil {
		h.log.Error("Failed to encode event", zap.String("event", event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for p := range h.peers[userID] {
		select {
		case p.send <- data:
			n++
		default:
			h.log.Warn("Dropping event for slow client", zap.String("user_id", userID), zap.String("event", event))
		}
	}
	if h.metrics != nil {
		h.metrics.EventsPushed.WithLabelValues(event).Add(float64(n))
	}
	return n
}

// Kick closes every connection of userID with a close frame.
func (h *Hub) Kick(userID string) {
	h.mu.Lock()
	peers := h.peers[userID]
	delete(h.peers, userID)
	h.mu.Unlock()

	for p := range peers {
		close(p.send)
		h.gauge(-1)
	}
	if len(peers) > 0 {
		h.log.Info("Closed realtime connections", zap.String("user_id", userID), zap.Int("count", len(peers)))
	}
}

// Connections returns the number of live connections of userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers[userID])
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	if h.peers[p.userID] == nil {
		h.peers[p.userID] = make(map[*peer]struct{})
	}
	h.peers[p.userID][p] = struct{}{}
	h.mu.Unlock()

	h.gauge(1)
	h.log.Debug("Client connected", zap.String("user_id", p.userID))
}

func (h *Hub) unregister(p *peer) {
	p.cancel()

	h.mu.Lock()
	_, ok := h.peers[p.userID][p]
	if ok {
		delete(h.peers[p.userID], p)
		if len(h.peers[p.userID]) == 0 {
			delete(h.peers, p.userID)
		}
	}
	h.mu.Unlock()

	if ok {
		h.gauge(-1)
	}
	h.log.Debug("Client disconnected", zap.String("user_id", p.userID))
}

func (h *Hub) gauge(delta float64) {
	if h.metrics != nil {
		h.metrics.RealtimeConnections.Add(delta)
	}
}
