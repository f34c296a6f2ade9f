// Package protocol defines the JSON frame types exchanged with clients.
// Every frame is a single object carrying an eventType discriminator; the
// full variant set is closed so each payload is decoded exactly once at the
// gateway boundary.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pwalder/cospace/backend/internal/model/space"
)

// Inbound is implemented by every client-to-server frame variant.
type Inbound interface {
	inbound()
}

// LoginRequest registers a display name and asks for a user ID.
type LoginRequest struct {
	UserName string `json:"userName"`
}

// NewSessionRequest creates a session around the given central object.
type NewSessionRequest struct {
	SessionName  string             `json:"sessionName"`
	ObjectConfig space.ObjectConfig `json:"objectConfig"`
}

// DeleteSessionRequest unloads and purges a session.
type DeleteSessionRequest struct {
	SessionID int `json:"sessionId"`
}

// JoinSessionRequest joins the sender to a session at an initial transform.
type JoinSessionRequest struct {
	SessionID int        `json:"sessionId"`
	Position  space.Vec3 `json:"position"`
	Rotation  space.Quat `json:"rotation"`
}

// SessionLeaveRequest removes the sender from its current session only.
type SessionLeaveRequest struct{}

// ClientLeaveRequest announces the client is going away entirely.
type ClientLeaveRequest struct{}

// PositionUpdate overwrites the sender's transform; deltas are batched and
// broadcast by the session tick, not per update.
type PositionUpdate struct {
	UserID          int        `json:"userId"`
	UpdatedPosition space.Vec3 `json:"updatedPosition"`
	UpdatedRotation space.Quat `json:"updatedRotation"`
}

// ObjectConfigUpdate changes the shared object's scale and rotation.
type ObjectConfigUpdate struct {
	Config space.ObjectConfig `json:"config"`
}

// NewNoteRequest creates a note; Note.ID must be the unassigned sentinel.
type NewNoteRequest struct {
	Note space.Note `json:"note"`
}

// EditNoteRequest replaces an existing note's content, kind and position.
type EditNoteRequest struct {
	Note space.Note `json:"note"`
}

// DeleteNoteRequest removes a note by ID on behalf of UserID.
type DeleteNoteRequest struct {
	UserID int `json:"userId"`
	ID     int `json:"id"`
}

// UpdateUserInfoRequest renames the sender.
type UpdateUserInfoRequest struct {
	UserID   int    `json:"userId"`
	UserName string `json:"userName"`
}

// NotesRequest asks for the sender's session's full note list.
type NotesRequest struct{}

// SessionListRequest asks for the current session roster summaries.
type SessionListRequest struct{}

// ObjectListRequest asks for the available central-object types.
type ObjectListRequest struct{}

// HeartbeatReply answers a server heartbeat probe.
type HeartbeatReply struct{}

func (LoginRequest) inbound()          {}
func (NewSessionRequest) inbound()     {}
func (DeleteSessionRequest) inbound()  {}
func (JoinSessionRequest) inbound()    {}
func (SessionLeaveRequest) inbound()   {}
func (ClientLeaveRequest) inbound()    {}
func (PositionUpdate) inbound()        {}
func (ObjectConfigUpdate) inbound()    {}
func (NewNoteRequest) inbound()        {}
func (EditNoteRequest) inbound()       {}
func (DeleteNoteRequest) inbound()     {}
func (UpdateUserInfoRequest) inbound() {}
func (NotesRequest) inbound()          {}
func (SessionListRequest) inbound()    {}
func (ObjectListRequest) inbound()     {}
func (HeartbeatReply) inbound()        {}

// UnknownEventError reports a frame with an unrecognized discriminator. The
// gateway logs these and drops the frame; they are never fatal.
type UnknownEventError struct {
	EventType string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown eventType %q", e.EventType)
}

type envelope struct {
	EventType string `json:"eventType"`
}

// DecodeInbound parses one client frame into its concrete variant.
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame envelope: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("frame missing eventType")
	}

	var msg Inbound
	switch env.EventType {
	case "login":
		msg = &LoginRequest{}
	case "newSession":
		msg = &NewSessionRequest{}
	case "deleteSession":
		msg = &DeleteSessionRequest{}
	case "joinSession":
		msg = &JoinSessionRequest{}
	case "clientSessionLeave":
		msg = &SessionLeaveRequest{}
	case "clientLeave":
		msg = &ClientLeaveRequest{}
	case "clientPosition":
		msg = &PositionUpdate{}
	case "objectConfig":
		msg = &ObjectConfigUpdate{}
	case "newNote":
		msg = &NewNoteRequest{}
	case "editNote":
		msg = &EditNoteRequest{}
	case "deleteNote":
		msg = &DeleteNoteRequest{}
	case "updateUserInfo":
		msg = &UpdateUserInfoRequest{}
	case "requestNotes":
		msg = &NotesRequest{}
	case "sessionList":
		msg = &SessionListRequest{}
	case "objectList":
		msg = &ObjectListRequest{}
	case "heartbeat":
		msg = &HeartbeatReply{}
	default:
		return nil, &UnknownEventError{EventType: env.EventType}
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", env.EventType, err)
	}
	return msg, nil
}
