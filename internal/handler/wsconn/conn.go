// Package wsconn wraps gorilla websocket connections with keepalive and
// serialised writes shared by every WebSocket endpoint.
package wsconn

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("websocket closed")

// NewUpgrader 返回允许任意来源的升级器
func NewUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// Conn is a websocket connection with one reader and many writers.
type Conn struct {
	ws   *websocket.Conn
	tag  string
	mu   sync.Mutex
	once sync.Once
	done chan struct{}
}

// Upgrade upgrades the request and starts the keepalive loop. On failure the
// upgrader has already replied to the client.
func Upgrade(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, tag string) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[%s] upgrade failed: %v", tag, err)
		return nil, err
	}
	return newConn(ws, tag), nil
}

func newConn(ws *websocket.Conn, tag string) *Conn {
	c := &Conn{ws: ws, tag: tag, done: make(chan struct{})}

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.pingLoop()
	return c
}

// ReadMessage blocks for the next frame and refreshes the read deadline.
// Only one goroutine may read.
func (c *Conn) ReadMessage() (int, []byte, error) {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
			log.Printf("[%s] read error: %v", c.tag, err)
		}
		return mt, nil, err
	}
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	return mt, data, nil
}

// WriteJSON marshals v and sends it as a text frame.
func (c *Conn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// WriteText sends an already encoded text frame.
func (c *Conn) WriteText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

// WriteBinary sends a binary frame.
func (c *Conn) WriteBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

// Close sends a best-effort close frame and closes the socket. Safe to call twice;
// a blocked ReadMessage returns once the socket is closed.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// pingLoop 定期发送ping消息
func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
