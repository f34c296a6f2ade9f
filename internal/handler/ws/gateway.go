// Package ws is the realtime gateway: it owns every live client
// connection, the heartbeat sweep, and the dispatch from inbound frames to
// session operations.
package ws

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pwalder/cospace/backend/internal/metrics"
	"github.com/pwalder/cospace/backend/internal/protocol"
	"github.com/pwalder/cospace/backend/internal/service/session"
	"github.com/pwalder/cospace/backend/pkg/utils"
)

// ObjectSource lists the central-object templates clients may pick from.
type ObjectSource interface {
	Objects() []string
}

// Gateway registers connections, runs the heartbeat sweep, and routes
// decoded frames into the session manager.
type Gateway struct {
	manager  *session.Manager
	objects  ObjectSource
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	heartbeatInterval time.Duration

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	hbDone chan struct{}
}

// NewGateway wires the gateway to its collaborators.
func NewGateway(manager *session.Manager, objects ObjectSource, m *metrics.Metrics, heartbeatInterval time.Duration) *Gateway {
	return &Gateway{
		manager: manager,
		objects: objects,
		metrics: m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		heartbeatInterval: heartbeatInterval,
		conns:             make(map[*Conn]struct{}),
	}
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}

	c := newConn(sock)
	log.Printf("[websocket] new connection %s from %s", c.id, r.RemoteAddr)
	g.serve(c)
}

// serve runs the connection lifecycle; split from the HTTP upgrade so tests
// can drive it over an in-memory transport.
func (g *Gateway) serve(c *Conn) {
	g.register(c)
	go c.writePump()

	// Every new connection immediately learns what sessions exist.
	c.SendEvent(protocol.NewSessionList(g.manager.ReducedSessions()))

	g.readPump(c)
	g.drop(c, "connection closed")
}

func (g *Gateway) register(c *Conn) {
	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()
	g.metrics.ConnectionsActive.Inc()
}

// drop removes a connection, evicting its user from any session. It reports
// whether the connection was still registered.
func (g *Gateway) drop(c *Conn, reason string) bool {
	g.mu.Lock()
	_, present := g.conns[c]
	delete(g.conns, c)
	g.mu.Unlock()
	if !present {
		return false
	}

	g.metrics.ConnectionsActive.Dec()
	if id := c.UserID(); id != 0 {
		g.manager.DropUser(id)
	}
	c.close()
	log.Printf("[websocket] conn %s dropped: %s", c.id, reason)
	return true
}

func (g *Gateway) readPump(c *Conn) {
	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read from %s: %v", c.id, err)
			}
			return
		}
		g.dispatch(c, data)
	}
}

// StartHeartbeat launches the liveness sweep. A connection that fails to
// answer two consecutive probes is evicted; one missed probe only arms the
// flag, so transient latency never drops anyone.
func (g *Gateway) StartHeartbeat() {
	g.mu.Lock()
	if g.hbDone != nil {
		g.mu.Unlock()
		return
	}
	g.hbDone = make(chan struct{})
	done := g.hbDone
	g.mu.Unlock()

	go func() {
		ticker := time.NewTicker(g.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				g.sweep()
			}
		}
	}()
}

// StopHeartbeat halts the sweep; stopping twice is a no-op.
func (g *Gateway) StopHeartbeat() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hbDone == nil {
		return
	}
	close(g.hbDone)
	g.hbDone = nil
}

// sweep probes every live connection and evicts the ones that never
// answered the previous probe.
func (g *Gateway) sweep() {
	g.mu.Lock()
	conns := make([]*Conn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	probe := protocol.NewHeartbeat()
	for _, c := range conns {
		if c.armProbe() {
			c.SendEvent(probe)
			continue
		}
		// The connection may have closed on its own since the snapshot;
		// only a real removal counts as an eviction.
		if g.drop(c, "heartbeat timeout") {
			log.Printf("[websocket] heartbeat not replied to in time, dropped conn %s", c.id)
			g.metrics.HeartbeatEvictions.Inc()
		}
	}
}

// connCount returns the number of registered connections.
func (g *Gateway) connCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// assignUserID allocates the smallest user ID free across all currently
// connected users and binds it to the connection in one step. Scanning and
// assigning under the same lock keeps concurrent logins from observing the
// same free ID.
func (g *Gateway) assignUserID(c *Conn, name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id := c.UserID(); id != 0 {
		c.setUser(id, name)
		return id
	}

	used := make([]int, 0, len(g.conns))
	for conn := range g.conns {
		if id := conn.UserID(); id != 0 {
			used = append(used, id)
		}
	}
	id := utils.FirstMissingPositive(used)
	c.setUser(id, name)
	return id
}

// broadcastAll sends an event to every connection, joined or not.
func (g *Gateway) broadcastAll(e protocol.Outbound) {
	g.mu.Lock()
	conns := make([]*Conn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.SendEvent(e)
	}
}
