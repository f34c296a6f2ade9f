package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pwalder/cospace/backend/internal/protocol"
)

// sendQueueSize bounds the per-connection outbound queue; a client that
// cannot drain this many frames is dropped rather than allowed to block
// everyone else.
const sendQueueSize = 256

// transport is the slice of *websocket.Conn the gateway uses; tests
// substitute an in-memory pipe.
type transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Conn is one live client connection: the transport handle, its outbound
// queue, the heartbeat flag, and the identity assigned at login.
type Conn struct {
	id     string
	sock   transport
	send   chan []byte
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	alive    bool
	userID   int
	userName string
}

func newConn(sock transport) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		sock:   sock,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
		alive:  true,
	}
}

// SendEvent queues an outbound event; it never blocks the caller. A full
// queue means the client stopped reading, so the connection is closed.
func (c *Conn) SendEvent(e protocol.Outbound) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[websocket] marshal outbound event: %v", err)
		return
	}

	select {
	case c.send <- data:
	case <-c.closed:
	default:
		log.Printf("[websocket] conn %s cannot keep up, dropping", c.id)
		c.close()
	}
}

// writePump is the connection's single writer; it drains the queue until
// the connection closes.
func (c *Conn) writePump() {
	for {
		select {
		case <-c.closed:
			_ = c.sock.Close()
			return
		case data := <-c.send:
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[websocket] write to %s: %v", c.id, err)
				c.close()
			}
		}
	}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.closed) })
}

// UserID returns the identity assigned at login, or 0 before login.
func (c *Conn) UserID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// UserName returns the display name declared at login.
func (c *Conn) UserName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userName
}

func (c *Conn) setUser(id int, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id
	c.userName = name
}

func (c *Conn) setUserName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userName = name
}

// markAlive records a heartbeat answer.
func (c *Conn) markAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = true
}

// armProbe reports whether the client answered since the last sweep and
// arms the flag for the next round.
func (c *Conn) armProbe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasAlive := c.alive
	c.alive = false
	return wasAlive
}
