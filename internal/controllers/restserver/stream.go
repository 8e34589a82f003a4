package restserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/softbio/fallcapture/internal/types"
	"go.uber.org/zap"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds client messages; clients only send control frames
	maxMessageSize = 4096

	// sendBuffer is the number of frames queued per client before frames
	// start being dropped for that client
	sendBuffer = 256
)

// streamHub fans replayed frames out to every connected WebSocket client.
// Each client gets its own playback subscription and send queue, so a slow
// browser drops its own frames without stalling playback.
type streamHub struct {
	engine   Engine
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

func newStreamHub(engine Engine, allowAnyOrigin bool, logger *zap.SugaredLogger) *streamHub {
	h := &streamHub{
		engine:  engine,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
		},
	}
	if allowAnyOrigin {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return h
}

// serve upgrades the request and streams frames until either side hangs up.
// The playback subscription is registered before the handshake completes so
// no frame emitted after the client connects is missed.
func (h *streamHub) serve(w http.ResponseWriter, req *http.Request) {
	c := &streamClient{
		hub:  h,
		send: make(chan *types.PlaybackFrame, sendBuffer),
		done: make(chan struct{}),
	}
	c.unsubscribe = h.engine.OnPlaybackFrame(c.enqueue)

	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		c.unsubscribe()
		h.logger.Warnf("websocket upgrade failed for %s: %v", req.RemoteAddr, err)
		return
	}
	c.conn = conn

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Infof("playback stream client %s connected (%d total)", req.RemoteAddr, n)

	go c.writePump()
	c.readPump()
}

func (h *streamHub) remove(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Infof("playback stream client disconnected (%d remaining)", n)
}

// closeAll disconnects every client
func (h *streamHub) closeAll() {
	h.mu.Lock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// streamClient is one WebSocket connection. Only writePump writes to conn.
type streamClient struct {
	hub         *streamHub
	conn        *websocket.Conn
	send        chan *types.PlaybackFrame
	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
}

// enqueue is the playback callback. It runs on the playback delivery path
// and must never block.
func (c *streamClient) enqueue(f *types.PlaybackFrame) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- f:
	default:
		c.hub.logger.Debugw("dropping playback frame for slow stream client", "index", frameIndex(f))
	}
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.unsubscribe()
		c.hub.remove(c)
	})
}

// readPump discards client messages and keeps the pong deadline fresh.
// It returns when the connection closes.
func (c *streamClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debugf("playback stream read error: %v", err)
			}
			return
		}
	}
}

// writePump sends queued frames as JSON. An idle notification is sent as
// the JSON literal null.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func frameIndex(f *types.PlaybackFrame) int {
	if f == nil {
		return -1
	}
	return f.Index
}
