package ws

import (
	"context"
	"log"

	"github.com/pwalder/cospace/backend/internal/protocol"
	"github.com/pwalder/cospace/backend/internal/service/session"
)

// dispatch decodes one inbound frame and routes it. Malformed or unknown
// frames are logged and dropped; nothing a client sends can take the
// connection down except its own departure.
func (g *Gateway) dispatch(c *Conn, data []byte) {
	msg, err := protocol.DecodeInbound(data)
	if err != nil {
		log.Printf("[websocket] dropping frame from %s: %v", c.id, err)
		return
	}
	g.metrics.FramesTotal.WithLabelValues(eventName(msg)).Inc()

	// Everything below the login/list/heartbeat surface needs an identity.
	switch msg.(type) {
	case *protocol.LoginRequest, *protocol.HeartbeatReply,
		*protocol.SessionListRequest, *protocol.ObjectListRequest:
	default:
		if c.UserID() == 0 {
			log.Printf("[websocket] unauthenticated %s frame from %s, ignoring", eventName(msg), c.id)
			return
		}
	}

	switch req := msg.(type) {
	case *protocol.HeartbeatReply:
		c.markAlive()

	case *protocol.LoginRequest:
		g.handleLogin(c, req)

	case *protocol.SessionListRequest:
		c.SendEvent(protocol.NewSessionList(g.manager.ReducedSessions()))

	case *protocol.ObjectListRequest:
		c.SendEvent(protocol.NewObjectList(g.objects.Objects()))

	case *protocol.NewSessionRequest:
		g.handleNewSession(c, req)

	case *protocol.DeleteSessionRequest:
		if err := g.manager.Delete(context.Background(), req.SessionID); err != nil {
			log.Printf("[websocket] delete session %d: %v", req.SessionID, err)
			return
		}
		g.broadcastAll(protocol.NewSessionList(g.manager.ReducedSessions()))

	case *protocol.JoinSessionRequest:
		g.handleJoinSession(c, req)

	case *protocol.SessionLeaveRequest:
		g.manager.DropUser(c.UserID())

	case *protocol.ClientLeaveRequest:
		g.drop(c, "client leave")

	case *protocol.PositionUpdate:
		if !g.verifyIdentity(c, req.UserID, "clientPosition") {
			return
		}
		g.manager.UpdatePosition(c.UserID(), req.UpdatedPosition, req.UpdatedRotation)

	case *protocol.ObjectConfigUpdate:
		g.manager.SetObjectConfig(c.UserID(), req.Config)

	case *protocol.NewNoteRequest:
		g.manager.CreateNote(c.UserID(), req.Note)

	case *protocol.EditNoteRequest:
		g.manager.EditNote(c.UserID(), req.Note)

	case *protocol.DeleteNoteRequest:
		if !g.verifyIdentity(c, req.UserID, "deleteNote") {
			return
		}
		g.manager.DeleteNote(c.UserID(), req.ID)

	case *protocol.UpdateUserInfoRequest:
		g.handleUpdateUserInfo(c, req)

	case *protocol.NotesRequest:
		g.manager.SendNotes(c.UserID(), c)
	}
}

func (g *Gateway) handleLogin(c *Conn, req *protocol.LoginRequest) {
	id := g.assignUserID(c, req.UserName)
	log.Printf("[websocket] %s logged in as %q (user %d)", c.id, req.UserName, id)
	c.SendEvent(protocol.NewLogin(id, req.UserName))
}

func (g *Gateway) handleNewSession(c *Conn, req *protocol.NewSessionRequest) {
	host := &session.ActiveUser{ID: c.UserID(), Name: c.UserName(), Conn: c}

	// A connection hosts or joins one session at a time.
	g.manager.DropUser(host.ID)

	s, err := g.manager.Create(req.SessionName, req.ObjectConfig.ObjectType, host)
	if err != nil {
		log.Printf("[websocket] create session for %s: %v", c.id, err)
		c.SendEvent(protocol.NewError("Could not create Session!"))
		return
	}

	g.broadcastAll(protocol.NewSessionList(g.manager.ReducedSessions()))
	c.SendEvent(protocol.NewSessionCreated(s.Record()))
}

func (g *Gateway) handleJoinSession(c *Conn, req *protocol.JoinSessionRequest) {
	s, ok := g.manager.Get(req.SessionID)
	if !ok {
		log.Printf("[websocket] %s tried to join nonexistent session %d", c.id, req.SessionID)
		c.SendEvent(protocol.NewError("Cannot join session: Session does not exist!"))
		return
	}

	g.manager.DropUser(c.UserID())

	u := &session.ActiveUser{
		ID:       c.UserID(),
		Name:     c.UserName(),
		Conn:     c,
		Position: req.Position,
		Rotation: req.Rotation,
	}
	c.SendEvent(protocol.NewSessionJoined(s.Record()))
	s.Join(u)
}

func (g *Gateway) handleUpdateUserInfo(c *Conn, req *protocol.UpdateUserInfoRequest) {
	if !g.verifyIdentity(c, req.UserID, "updateUserInfo") {
		return
	}
	c.setUserName(req.UserName)
	g.manager.RenameUser(c.UserID(), req.UserName)

	event := protocol.NewUserInfoUpdated(c.UserID(), req.UserName)
	if s, ok := g.manager.SessionFor(c.UserID()); ok {
		s.Broadcast(event)
		return
	}
	c.SendEvent(event)
}

// verifyIdentity rejects frames whose embedded userId does not match the
// connection's authenticated identity. Logged as suspected spoofing.
func (g *Gateway) verifyIdentity(c *Conn, claimed int, frame string) bool {
	if claimed == c.UserID() {
		return true
	}
	log.Printf("[websocket] %s sent %s claiming user %d but is user %d, rejecting",
		c.id, frame, claimed, c.UserID())
	return false
}

func eventName(msg protocol.Inbound) string {
	switch msg.(type) {
	case *protocol.LoginRequest:
		return "login"
	case *protocol.NewSessionRequest:
		return "newSession"
	case *protocol.DeleteSessionRequest:
		return "deleteSession"
	case *protocol.JoinSessionRequest:
		return "joinSession"
	case *protocol.SessionLeaveRequest:
		return "clientSessionLeave"
	case *protocol.ClientLeaveRequest:
		return "clientLeave"
	case *protocol.PositionUpdate:
		return "clientPosition"
	case *protocol.ObjectConfigUpdate:
		return "objectConfig"
	case *protocol.NewNoteRequest:
		return "newNote"
	case *protocol.EditNoteRequest:
		return "editNote"
	case *protocol.DeleteNoteRequest:
		return "deleteNote"
	case *protocol.UpdateUserInfoRequest:
		return "updateUserInfo"
	case *protocol.NotesRequest:
		return "requestNotes"
	case *protocol.SessionListRequest:
		return "sessionList"
	case *protocol.ObjectListRequest:
		return "objectList"
	case *protocol.HeartbeatReply:
		return "heartbeat"
	}
	return "unknown"
}
