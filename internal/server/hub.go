package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mgpai22/chitra/internal/session"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// one WebSocket subscriber of a session
type wsConnection struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	server    *Server
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	c := &wsConnection{
		conn:      conn,
		sessionID: e.session.ID(),
		send:      make(chan []byte, 1),
		done:      make(chan struct{}),
		server:    s,
	}

	c.push(e.session.Snapshot())
	unsubscribe := e.session.Subscribe(c.push)

	go c.writePump()
	go c.readPump(unsubscribe)
}

// push queues a snapshot without blocking the session. Only the newest
// unsent snapshot is kept, so a slow client skips intermediate states but
// always ends up with the latest one.
func (c *wsConnection) push(snap session.Snapshot) {
	msg, err := json.Marshal(snap)
	if err != nil {
		c.server.logger.Errorw("Failed to encode snapshot", "session", c.sessionID, "error", err)
		return
	}

	for {
		select {
		case <-c.done:
			return
		case c.send <- msg:
			return
		default:
		}

		select {
		case <-c.send:
			c.server.logger.Debugw("Replacing unsent snapshot for slow client",
				"session", c.sessionID,
				"version", snap.Version,
			)
		default:
		}
	}
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *wsConnection) readPump(unsubscribe func()) {
	defer func() {
		unsubscribe()
		c.close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Errorw("WebSocket read error", "session", c.sessionID, "error", err)
			}
			break
		}
	}
}
